package resource

import (
	"container/list"
	"io"
	"io/fs"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/logger"
)

// Handle is an open resource.
type Handle = io.Closer

// OpenFunc opens the resource identified by key.
type OpenFunc func(key string) (Handle, error)

type entry struct {
	key    string
	handle Handle
	refs   int
}

// Stats counts manager activity.
type Stats struct {
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Manager is a bounded LRU of open handles.
type Manager struct {
	mu    sync.Mutex
	max   int
	items map[string]*list.Element
	order *list.List // front is most recently used
	stats Stats
	group singleflight.Group
	log   *logger.Logger
}

// NewManager creates a manager with cfg's limits.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Manager{
		max:   cfg.MaxOpenHandles,
		items: make(map[string]*list.Element),
		order: list.New(),
		log:   log.WithComponent("resource"),
	}
}

// Lease is a caller's hold on an open handle. Release it when done.
type Lease struct {
	m    *Manager
	e    *entry
	once sync.Once
}

// Handle returns the leased handle.
func (l *Lease) Handle() Handle { return l.e.handle }

// Release gives the handle back to the manager.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.release(l.e) })
}

// Acquire returns a lease on the handle for key, opening it with open when it
// is not already open. Concurrent acquires of the same key open it once.
func (m *Manager) Acquire(key string, open OpenFunc) (*Lease, error) {
	for opened := false; ; opened = true {
		if l := m.lookup(key, !opened); l != nil {
			return l, nil
		}
		_, err, _ := m.group.Do(key, func() (any, error) {
			if m.contains(key) {
				return nil, nil
			}
			h, err := open(key)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.items[key] = m.order.PushFront(&entry{key: key, handle: h})
			m.stats.Misses++
			m.mu.Unlock()
			m.log.Debug("Handle opened", logger.Fields("key", key))
			return nil, nil
		})
		if err != nil {
			if _, ok := errors.AsAppError(err); ok {
				return nil, err
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil, errors.NotFound("handle", key).WithCause(err)
			}
			return nil, errors.Internal(err).WithDetail("key", key)
		}
	}
}

func (m *Manager) contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

func (m *Manager) lookup(key string, hit bool) *Lease {
	m.mu.Lock()
	el, ok := m.items[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	e := el.Value.(*entry)
	e.refs++
	m.order.MoveToFront(el)
	if hit {
		m.stats.Hits++
	}
	victims := m.evictLocked()
	m.mu.Unlock()
	m.close(victims)
	return &Lease{m: m, e: e}
}

func (m *Manager) release(e *entry) {
	m.mu.Lock()
	e.refs--
	victims := m.evictLocked()
	m.mu.Unlock()
	m.close(victims)
}

// evictLocked removes idle entries from the back until the limit holds.
func (m *Manager) evictLocked() []*entry {
	var victims []*entry
	for el := m.order.Back(); el != nil && len(m.items) > m.max; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.refs == 0 {
			m.order.Remove(el)
			delete(m.items, e.key)
			m.stats.Evictions++
			victims = append(victims, e)
		}
		el = prev
	}
	return victims
}

func (m *Manager) close(victims []*entry) {
	for _, e := range victims {
		if err := e.handle.Close(); err != nil {
			m.log.Warn("Closing handle failed", logger.Fields("key", e.key, logger.FieldError, err.Error()))
		}
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Open = len(m.items)
	for _, el := range m.items {
		if el.Value.(*entry).refs > 0 {
			s.InUse++
		}
	}
	return s
}

// Limit returns the idle handle limit.
func (m *Manager) Limit() int { return m.max }

// Close closes every handle, including those still leased. Leases released
// afterwards are ignored.
func (m *Manager) Close() error {
	m.mu.Lock()
	victims := make([]*entry, 0, len(m.items))
	for el := m.order.Front(); el != nil; el = el.Next() {
		victims = append(victims, el.Value.(*entry))
	}
	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.mu.Unlock()

	var first error
	for _, e := range victims {
		if err := e.handle.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
