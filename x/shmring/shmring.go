// Package shmring is a single-producer, single-consumer byte ring. It
// buffers a capture source ahead of frame decoding: the producer side
// never waits on the consumer while space remains, and the consumer sees
// io.EOF once the producer has closed and the ring is drained.
package shmring

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Write after CloseWrite or Close.
var ErrClosed = errors.New("shmring: closed")

// Ring is a single-producer, single-consumer byte ring.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // 0 -> >0 available edge
	writable chan struct{} // full -> not full edge

	wclosed   atomic.Bool
	closed    chan struct{} // reader gone
	closeOnce sync.Once
}

// New returns a ring of size bytes; size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// SizeFor returns the smallest power of two holding n bytes.
func SizeFor(n int) int {
	s := 2
	for s < n {
		s <<= 1
	}
	return s
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Space is how many bytes the producer can write without waiting.
func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

// Available is how many bytes the consumer can read without waiting.
func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// TryWrite copies as much of src as fits and returns the count.
func (r *Ring) TryWrite(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	n = int(r.size() - before)
	if n <= 0 {
		return 0
	}
	if len(src) < n {
		n = len(src)
	}

	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n))

	if before == 0 {
		signal(r.readable)
	}
	return n
}

// TryRead copies up to len(dst) buffered bytes and returns the count.
func (r *Ring) TryRead(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	n = int(wr - rd)
	if n <= 0 {
		return 0
	}
	if len(dst) < n {
		n = len(dst)
	}

	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n))

	if wr-rd == r.size() {
		signal(r.writable)
	}
	return n
}

// Write blocks until all of p is buffered or the ring is closed.
func (r *Ring) Write(p []byte) (int, error) {
	total := 0
	for {
		if r.wclosed.Load() {
			return total, ErrClosed
		}
		total += r.TryWrite(p[total:])
		if total == len(p) {
			return total, nil
		}
		select {
		case <-r.writable:
		case <-r.closed:
			return total, ErrClosed
		}
	}
}

// Read blocks until some bytes are buffered. After CloseWrite it drains
// what is left, then returns io.EOF.
func (r *Ring) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := r.TryRead(p); n > 0 {
			return n, nil
		}
		if r.wclosed.Load() {
			// A write may have landed between TryRead and the flag load.
			if n := r.TryRead(p); n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		select {
		case <-r.readable:
		case <-r.closed:
			return 0, io.ErrClosedPipe
		}
	}
}

// CloseWrite marks the end of the stream.
func (r *Ring) CloseWrite() error {
	r.wclosed.Store(true)
	signal(r.readable)
	return nil
}

// Close releases a blocked producer and ends reading.
func (r *Ring) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	r.wclosed.Store(true)
	return nil
}

func (r *Ring) Readable() <-chan struct{} { return r.readable }
func (r *Ring) Writable() <-chan struct{} { return r.writable }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
