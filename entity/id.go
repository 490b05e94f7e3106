package entity

import "sync/atomic"

type FileID uint64

// IDAllocator hands out process-wide file identifiers,
// which are never reused
type IDAllocator struct {
	last atomic.Uint64
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

func (allocator *IDAllocator) Next() FileID {
	return FileID(allocator.last.Add(1))
}
