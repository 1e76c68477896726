// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region of protected memory. It must not be
// copied. Reads after Close panic.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// New maps size bytes of protected, zero-filled memory.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: size must be positive, got %d", size)
	}
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		_ = unix.Munlock(region)
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise: %w", err)
	}
	return &Buffer{region: region}, nil
}

// NewFromBytes moves source into protected memory. source is zeroed
// whether or not the call succeeds.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)
	if len(source) == 0 {
		return nil, errors.New("secret: empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	return buffer, nil
}

// Bytes returns the protected bytes. The slice aliases the mapping and
// is invalid after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.region
}

// Len returns the buffer size, or 0 after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

// Close wipes and unmaps the region. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.region)

	err := errors.Join(unix.Munlock(b.region), unix.Munmap(b.region))
	b.region = nil
	if err != nil {
		return fmt.Errorf("secret: releasing region: %w", err)
	}
	return nil
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	clear(data)
}
