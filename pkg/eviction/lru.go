package eviction

import (
	"container/list"

	"github.com/pagecache/pagecache/pkg/entrytable"
)

// LRUPolicy maintains entries from most-recently-used (front) to
// least-recently-used (back). OnAccess moves the touched entry to the
// front in O(1) using the *list.Element handle stored on the entry's
// policy state.
type LRUPolicy struct {
	order *list.List
}

// NewLRU creates an empty LRU policy.
func NewLRU() *LRUPolicy {
	return &LRUPolicy{order: list.New()}
}

func (p *LRUPolicy) Name() string { return string(LRU) }

func (p *LRUPolicy) OnInsert(e *entrytable.Entry) {
	el := p.order.PushFront(e)
	e.Policy.SetHandle(el)
}

func (p *LRUPolicy) OnAccess(e *entrytable.Entry) {
	el, ok := e.Policy.Handle().(*list.Element)
	if !ok || el == nil {
		return
	}
	p.order.MoveToFront(el)
}

func (p *LRUPolicy) OnRemove(e *entrytable.Entry) {
	el, ok := e.Policy.Handle().(*list.Element)
	if !ok || el == nil {
		return
	}
	p.order.Remove(el)
	e.Policy.SetHandle(nil)
}

func (p *LRUPolicy) PickVictim() (string, bool) {
	back := p.order.Back()
	if back == nil {
		return "", false
	}
	return back.Value.(*entrytable.Entry).Key, true
}
