package system

import (
	"sync"
)

// history is a bounded FIFO of recent request transitions
type history struct {
	mu      sync.Mutex
	items   []string
	maxSize int
}

func newHistory(maxSize int) *history {
	h := &history{}
	h.maxSize = maxSize
	return h
}

// add appends item, dropping the oldest one when full
func (h *history) add(item string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == h.maxSize {
		h.items = h.items[1:]
	}
	h.items = append(h.items, item)
}

// lines returns a copy of the items, oldest first
func (h *history) lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.items...)
}
