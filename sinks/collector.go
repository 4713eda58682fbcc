package sinks

import (
	"context"
	"sync"

	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/flow"
)

// Delivery is one object handed to a Collector.
type Delivery struct {
	Object *dataobject.Object
	Info   flow.PassInfo
}

// Collector keeps a reference to every delivered object until Release.
type Collector struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Consume(_ context.Context, obj *dataobject.Object, info flow.PassInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, Delivery{Object: obj.Retain(), Info: info})
	return nil
}

// Deliveries returns the objects delivered since the last Release. They
// stay owned by the collector.
func (c *Collector) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.deliveries...)
}

// Domains returns the domains of every delivered mesh, in delivery order.
func (c *Collector) Domains() []int {
	var out []int
	for _, d := range c.Deliveries() {
		if tree, err := d.Object.Tree(); err == nil {
			out = append(out, tree.Domains()...)
		}
	}
	return out
}

// Release drops every held reference.
func (c *Collector) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.deliveries {
		d.Object.Release()
	}
	c.deliveries = nil
}
