package sealink

import (
	"bytes"
	"sync"
)

// lockList is a bounded, mutex-guarded byte-slice list used for seen-frame
// bookkeeping. When full, the oldest entry is evicted.
type lockList struct {
	list      [][]byte
	mu        sync.Mutex
	maxLength int
}

func (l *lockList) setMaxLength(length int) {
	l.maxLength = length
}

func (l *lockList) push(value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, value)

	if l.maxLength > 0 && len(l.list) > l.maxLength {
		l.list = l.list[1:]
	}
}

func (l *lockList) contains(e []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.list {
		if bytes.Equal(a, e) {
			return true
		}
	}
	return false
}
