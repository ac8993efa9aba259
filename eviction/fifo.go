// This file implements FIFO eviction.

package eviction

import "container/list"

// fifo evicts in insertion order. Replacing a key does not move it;
// a revalidated dashboard aggregate keeps its original slot.
type fifo struct {
	queue *list.List
	index map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{queue: list.New(), index: make(map[string]*list.Element)}
}

// OnGet is a no-op: reads do not affect insertion order.
func (f *fifo) OnGet(string) {}

func (f *fifo) OnPut(k string) {
	if _, ok := f.index[k]; ok {
		return
	}
	f.index[k] = f.queue.PushBack(k)
}

func (f *fifo) Evict() string {
	el := f.queue.Front()
	if el == nil {
		return ""
	}
	k := f.queue.Remove(el).(string)
	delete(f.index, k)
	return k
}

func (f *fifo) Remove(k string) {
	if el, ok := f.index[k]; ok {
		f.queue.Remove(el)
		delete(f.index, k)
	}
}

func (f *fifo) Len() int { return f.queue.Len() }
