/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package ivc

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// Align is the minimum alignment of queue bases and frame sizes. It is one
	// cache line so the TX and RX halves of a header never share a line.
	Align = 64

	// Number of 32-bit words in each half of a ChannelHeader.
	txFields = 16
	rxFields = 16

	// HeaderSize is the size of a ChannelHeader in shared memory.
	HeaderSize = (txFields + rxFields) * 4
)

// State is the connection state carried in the TX-owned half of a header.
type State uint32

const (
	// StateEstablished is zero so that an all-zero carveout is already usable
	// by peers that never run the handshake.
	StateEstablished State = 0
	StateSync        State = 1
	StateAck         State = 2
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateSync:
		return "SYNC"
	case StateAck:
		return "ACK"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// ChannelHeader is the per-direction record at the start of every queue.
// Layout (128 bytes):
//
//	0x00 wCount   write counter          (TX-owned)
//	0x04 state    connection state       (TX-owned)
//	0x08 wRsvd    reserved to 0x40       (TX-owned)
//	0x40 rCount   read counter           (RX-owned)
//	0x44 rRsvd    reserved to 0x80       (RX-owned)
//
// Each side writes only its own half. Every access goes through the atomic
// accessors below; values read from the other half come from an untrusted peer.
type ChannelHeader struct {
	wCount uint32
	state  uint32
	wRsvd  [txFields - 2]uint32

	rCount uint32
	rRsvd  [rxFields - 1]uint32
}

// WriteCount returns the number of frames ever enqueued by the writer.
func (h *ChannelHeader) WriteCount() uint32 {
	return atomic.LoadUint32(&h.wCount)
}

// SetWriteCount publishes the write counter. The atomic store orders all
// earlier frame stores before it.
func (h *ChannelHeader) SetWriteCount(v uint32) {
	atomic.StoreUint32(&h.wCount, v)
}

// State returns the connection state.
func (h *ChannelHeader) State() State {
	return State(atomic.LoadUint32(&h.state))
}

// SetState sets the connection state.
func (h *ChannelHeader) SetState(s State) {
	atomic.StoreUint32(&h.state, uint32(s))
}

// ReadCount returns the number of frames ever dequeued by the reader.
func (h *ChannelHeader) ReadCount() uint32 {
	return atomic.LoadUint32(&h.rCount)
}

// SetReadCount publishes the read counter.
func (h *ChannelHeader) SetReadCount(v uint32) {
	atomic.StoreUint32(&h.rCount, v)
}

// HeaderAt returns the ChannelHeader at byte offset off in mem. It is meant
// for inspecting a carveout without owning either side of it.
func HeaderAt(mem []byte, off uintptr) (*ChannelHeader, error) {
	if uint64(off)+HeaderSize > uint64(len(mem)) {
		return nil, fmt.Errorf("%w: header at %#x", ErrOutOfBounds, off)
	}
	if (uintptr(unsafe.Pointer(unsafe.SliceData(mem)))+off)%atomicAlign != 0 {
		return nil, fmt.Errorf("%w: header at %#x", ErrMisaligned, off)
	}
	return (*ChannelHeader)(unsafe.Pointer(&mem[off])), nil
}

// counters snapshots both counters before any decision is made on them.
func (h *ChannelHeader) counters() (w, r uint32) {
	w = atomic.LoadUint32(&h.wCount)
	r = atomic.LoadUint32(&h.rCount)
	return w, r
}

// isEmpty reports whether a reader should consider the queue empty. A delta
// larger than nframes can only come from a corrupt or hostile peer and is
// reported as empty so the reader never walks past the ring.
func isEmpty(w, r, nframes uint32) bool {
	count := w - r
	return count > nframes || w == r
}

// isFull reports whether a writer should consider the queue full. An
// impossible delta is reported as full for the same reason.
func isFull(w, r, nframes uint32) bool {
	return w-r >= nframes
}

// availCount is only meaningful once the over-full case has been excluded.
func availCount(w, r uint32) uint32 {
	return w - r
}

// AlignSize rounds size up to the next multiple of Align.
func AlignSize(size uint64) uint64 {
	return (size + Align - 1) &^ (Align - 1)
}

// TotalQueueSize returns the bytes occupied by one direction: a header
// followed by nframes frames.
func TotalQueueSize(nframes, frameSize uint32) uint64 {
	return HeaderSize + uint64(nframes)*uint64(frameSize)
}
