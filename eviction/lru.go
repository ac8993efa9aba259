// This file implements LRU eviction.

package eviction

import "container/list"

// lru keeps keys in a list ordered from most to least recently used.
// The map gives O(1) access to a key's list element.
type lru struct {
	order *list.List
	index map[string]*list.Element
}

func newLRU() *lru {
	return &lru{order: list.New(), index: make(map[string]*list.Element)}
}

// OnGet marks k as most recently used.
func (l *lru) OnGet(k string) {
	if el, ok := l.index[k]; ok {
		l.order.MoveToFront(el)
	}
}

// OnPut inserts k at the front, or refreshes its position on replace.
func (l *lru) OnPut(k string) {
	if el, ok := l.index[k]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.index[k] = l.order.PushFront(k)
}

// Evict removes the least recently used key, which always sits at the back.
func (l *lru) Evict() string {
	el := l.order.Back()
	if el == nil {
		return ""
	}
	k := l.order.Remove(el).(string)
	delete(l.index, k)
	return k
}

func (l *lru) Remove(k string) {
	if el, ok := l.index[k]; ok {
		l.order.Remove(el)
		delete(l.index, k)
	}
}

func (l *lru) Len() int { return l.order.Len() }
