package eviction

import (
	"container/list"

	"github.com/pagecache/pagecache/pkg/entrytable"
)

// SievePolicy implements the SIEVE eviction algorithm (Zhang et al.):
// new entries are inserted at the head; a single "hand" cursor retreats
// toward the head on each eviction, clearing visited bits as it passes
// and evicting the first entry it finds with visited == false. The hand
// wraps to the tail when it would walk off the head.
//
// Here "retreat toward the head" and "singly-linked" (spec.md §4.6) are
// realized with container/list.List: PushFront places new entries, and
// the hand walks via Prev(), wrapping to Back() at the boundary.
type SievePolicy struct {
	order *list.List
	hand  *list.Element
}

// NewSieve creates an empty SIEVE policy.
func NewSieve() *SievePolicy {
	return &SievePolicy{order: list.New()}
}

func (p *SievePolicy) Name() string { return string(SIEVE) }

func (p *SievePolicy) OnInsert(e *entrytable.Entry) {
	el := p.order.PushFront(e)
	e.Policy.SetHandle(el)
	e.Policy.Visited = false
	if p.hand == nil {
		// Hand "initializes at the tail" (spec.md §4.6); on the first
		// insert, front and back are the same element.
		p.hand = el
	}
}

func (p *SievePolicy) OnAccess(e *entrytable.Entry) {
	e.Policy.Visited = true
}

func (p *SievePolicy) OnRemove(e *entrytable.Entry) {
	el, ok := e.Policy.Handle().(*list.Element)
	if !ok || el == nil {
		return
	}
	if p.hand == el {
		p.hand = p.prevWrap(el)
		if p.hand == el {
			// el was the only node; list will be empty after removal.
			p.hand = nil
		}
	}
	p.order.Remove(el)
	e.Policy.SetHandle(nil)
}

// prevWrap returns the element preceding el in retreat order, wrapping
// from the head (Front) to the tail (Back).
func (p *SievePolicy) prevWrap(el *list.Element) *list.Element {
	if prev := el.Prev(); prev != nil {
		return prev
	}
	return p.order.Back()
}

func (p *SievePolicy) PickVictim() (string, bool) {
	if p.order.Len() == 0 {
		return "", false
	}
	if p.hand == nil {
		p.hand = p.order.Back()
	}

	hand := p.hand
	for {
		entry := hand.Value.(*entrytable.Entry)
		if entry.Policy.Visited {
			entry.Policy.Visited = false
			hand = p.prevWrap(hand)
			continue
		}
		p.hand = p.prevWrap(hand)
		return entry.Key, true
	}
}
