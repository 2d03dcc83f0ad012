package eviction

import (
	"container/list"

	"github.com/pagecache/pagecache/pkg/entrytable"
)

// FIFOPolicy is a queue ordered by insertion sequence: OnInsert appends,
// OnAccess is a no-op, and PickVictim returns the oldest surviving entry
// (spec.md §4.6).
type FIFOPolicy struct {
	order *list.List
}

// NewFIFO creates an empty FIFO policy.
func NewFIFO() *FIFOPolicy {
	return &FIFOPolicy{order: list.New()}
}

func (p *FIFOPolicy) Name() string { return string(FIFO) }

func (p *FIFOPolicy) OnInsert(e *entrytable.Entry) {
	el := p.order.PushBack(e)
	e.Policy.SetHandle(el)
}

func (p *FIFOPolicy) OnAccess(e *entrytable.Entry) {
	// FIFO order does not change on access.
}

func (p *FIFOPolicy) OnRemove(e *entrytable.Entry) {
	el, ok := e.Policy.Handle().(*list.Element)
	if !ok || el == nil {
		return
	}
	p.order.Remove(el)
	e.Policy.SetHandle(nil)
}

func (p *FIFOPolicy) PickVictim() (string, bool) {
	front := p.order.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(*entrytable.Entry).Key, true
}
