package definition

import (
	"sort"
	"sync"

	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
)

// Env is what factories receive besides their definition.
type Env struct {
	Rank    int
	Logger  *logger.Logger
	Tracker *dataobject.Tracker
}

// SourceFactory builds an originating stage.
type SourceFactory func(env Env, def StageDef) (flow.Producer, error)

// FilterFactory builds an intermediate stage reading from input.
type FilterFactory func(env Env, def StageDef, input flow.Producer) (flow.Producer, error)

// ConsumerFactory builds the consumer a sink delivers to.
type ConsumerFactory func(env Env, def StageDef) (flow.Consumer, error)

// Registry provides named factory lookup for building pipelines.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]SourceFactory
	filters   map[string]FilterFactory
	consumers map[string]ConsumerFactory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:   make(map[string]SourceFactory),
		filters:   make(map[string]FilterFactory),
		consumers: make(map[string]ConsumerFactory),
	}
}

// RegisterSource adds a source factory.
func (r *Registry) RegisterSource(name string, f SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = f
}

// RegisterFilter adds a filter factory.
func (r *Registry) RegisterFilter(name string, f FilterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = f
}

// RegisterConsumer adds a consumer factory.
func (r *Registry) RegisterConsumer(name string, f ConsumerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[name] = f
}

func (r *Registry) source(name string) (SourceFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.sources[name]; ok {
		return f, nil
	}
	return nil, errors.NotFound("source component", name)
}

func (r *Registry) filter(name string) (FilterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.filters[name]; ok {
		return f, nil
	}
	return nil, errors.NotFound("filter component", name)
}

func (r *Registry) consumer(name string) (ConsumerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.consumers[name]; ok {
		return f, nil
	}
	return nil, errors.NotFound("sink component", name)
}

// List returns the sorted names of all registered components, prefixed by
// their role.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources)+len(r.filters)+len(r.consumers))
	for name := range r.sources {
		names = append(names, "source/"+name)
	}
	for name := range r.filters {
		names = append(names, "filter/"+name)
	}
	for name := range r.consumers {
		names = append(names, "sink/"+name)
	}
	sort.Strings(names)
	return names
}
