package dataobject

import "sync/atomic"

// Tracker counts live objects and payload bytes. A nil *Tracker ignores
// everything, so objects built without one cost nothing.
type Tracker struct {
	live  atomic.Int64
	bytes atomic.Int64
	total atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Live returns the number of objects not yet fully released.
func (t *Tracker) Live() int64 {
	if t == nil {
		return 0
	}
	return t.live.Load()
}

// Bytes returns the payload bytes held by live objects.
func (t *Tracker) Bytes() int64 {
	if t == nil {
		return 0
	}
	return t.bytes.Load()
}

// Created returns the number of objects ever tracked.
func (t *Tracker) Created() int64 {
	if t == nil {
		return 0
	}
	return t.total.Load()
}

func (t *Tracker) add(size int64) {
	if t == nil {
		return
	}
	t.live.Add(1)
	t.total.Add(1)
	t.bytes.Add(size)
}

func (t *Tracker) remove(size int64) {
	if t == nil {
		return
	}
	t.live.Add(-1)
	t.bytes.Add(-size)
}
