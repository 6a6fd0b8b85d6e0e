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
	"unsafe"

	"github.com/ivcshm/ivc/internal/util"
)

// Notifier signals the peer that it should look at the channel again.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func()

// Notify calls f.
func (f NotifierFunc) Notify() { f() }

// atomicAlign is the alignment the counters need for atomic access.
const atomicAlign = 4

// maxFrameSize keeps every size returned by Read and Write inside an int32.
const maxFrameSize = 1 << 31

// ChannelState is a snapshot of both queues for debugging and diagnostics.
type ChannelState struct {
	NumFrames  uint32
	FrameSize  uint32
	Local      State  // our TX-owned state
	Peer       State  // state published by the peer
	TxWrite    uint32 // outgoing write counter (ours)
	TxRead     uint32 // outgoing read counter (peer's)
	RxWrite    uint32 // incoming write counter (peer's)
	RxRead     uint32 // incoming read counter (ours)
	WritePos   uint32
	ReadPos    uint32
	Generation uint64
}

// Channel is one side of an IVC channel. It is local bookkeeping only: the
// shared state lives in the two ChannelHeaders inside mem.
//
// A Channel is driven by a single agent and is not safe for concurrent use.
// The peer may run concurrently on the other side of the shared memory.
type Channel struct {
	mem    []byte
	rxOff  uintptr // incoming queue: peer writes frames, we own rCount
	txOff  uintptr // outgoing queue: we write frames, peer owns rCount
	wPos   uint32
	rPos   uint32
	n      uint32 // number of frames per queue
	fsize  uint32
	notify Notifier

	// generation counts how many times the handshake zeroed our counters.
	generation uint64
	// No Go pointers into shared memory are stored; addresses are computed on demand.
}

// New validates the queue geometry and returns a Channel over mem. rxBase and
// txBase are byte offsets of the incoming and outgoing queue headers in mem.
// The channel starts with whatever state is in shared memory; callers run
// Reset and Notified to (re)establish it.
func New(mem []byte, rxBase, txBase uintptr, nframes, frameSize uint32, n Notifier) (*Channel, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil notifier", ErrInvalidParams)
	}
	if err := checkParams(mem, rxBase, txBase, nframes, frameSize); err != nil {
		util.LogDebug("ivc: rejecting channel rx=%#x tx=%#x nframes=%d frame=%d: %v",
			rxBase, txBase, nframes, frameSize, err)
		return nil, err
	}
	return &Channel{
		mem:    mem,
		rxOff:  rxBase,
		txOff:  txBase,
		n:      nframes,
		fsize:  frameSize,
		notify: n,
	}, nil
}

func checkParams(mem []byte, base1, base2 uintptr, nframes, frameSize uint32) error {
	if nframes == 0 {
		return fmt.Errorf("%w: zero frames", ErrInvalidParams)
	}
	if uint64(nframes)*uint64(frameSize) >= 1<<32 {
		return fmt.Errorf("%w: %d * %d", ErrOverflow, nframes, frameSize)
	}
	if frameSize > maxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, frameSize)
	}

	// The headers must be aligned enough for the counters to be accessed atomically.
	if base1&(Align-1) != 0 {
		return fmt.Errorf("%w: queue base %#x", ErrMisaligned, base1)
	}
	if base2&(Align-1) != 0 {
		return fmt.Errorf("%w: queue base %#x", ErrMisaligned, base2)
	}
	if frameSize == 0 || frameSize&(Align-1) != 0 {
		return fmt.Errorf("%w: frame size %d", ErrMisaligned, frameSize)
	}

	size := TotalQueueSize(nframes, frameSize)
	lo, hi := uint64(base1), uint64(base2)
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo+size > hi {
		return fmt.Errorf("%w: %#x + %#x, %#x", ErrOverlap, lo, size, hi)
	}
	if hi+size > uint64(len(mem)) {
		return fmt.Errorf("%w: %#x + %#x > %#x", ErrOutOfBounds, hi, size, len(mem))
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if (addr+base1)%atomicAlign != 0 || (addr+base2)%atomicAlign != 0 {
		return fmt.Errorf("%w: shared memory at %#x", ErrMisaligned, addr)
	}
	return nil
}

// rx returns the incoming queue header.
func (c *Channel) rx() *ChannelHeader {
	return (*ChannelHeader)(unsafe.Pointer(&c.mem[c.rxOff]))
}

// tx returns the outgoing queue header.
func (c *Channel) tx() *ChannelHeader {
	return (*ChannelHeader)(unsafe.Pointer(&c.mem[c.txOff]))
}

// frame returns frame idx of the queue whose header is at off.
func (c *Channel) frame(off uintptr, idx uint32) []byte {
	start := off + HeaderSize + uintptr(idx)*uintptr(c.fsize)
	return c.mem[start : start+uintptr(c.fsize) : start+uintptr(c.fsize)]
}

// NumFrames returns the number of frames per queue.
func (c *Channel) NumFrames() uint32 { return c.n }

// FrameSize returns the size of one frame in bytes.
func (c *Channel) FrameSize() uint32 { return c.fsize }

// State returns our connection state.
func (c *Channel) State() State { return c.tx().State() }

// PeerState returns the connection state published by the peer.
func (c *Channel) PeerState() State { return c.rx().State() }

// Generation returns how many times the handshake has zeroed our counters.
func (c *Channel) Generation() uint64 { return c.generation }

func (c *Channel) rxEmpty() bool {
	w, r := c.rx().counters()
	return isEmpty(w, r, c.n)
}

func (c *Channel) txFull() bool {
	w, r := c.tx().counters()
	return isFull(w, r, c.n)
}

// checkRead reports whether a frame can be consumed. Our TX state is set
// locally; the peer cannot reset its counters until we have acknowledged its
// SYNC, so no further synchronisation is needed here.
func (c *Channel) checkRead() error {
	if c.tx().State() != StateEstablished {
		return ErrConnectionReset
	}
	if c.rxEmpty() {
		return ErrWouldBlock
	}
	return nil
}

func (c *Channel) checkWrite() error {
	if c.tx().State() != StateEstablished {
		return ErrConnectionReset
	}
	if c.txFull() {
		return ErrWouldBlock
	}
	return nil
}

// CanRead reports whether Read would succeed now.
func (c *Channel) CanRead() bool { return c.checkRead() == nil }

// CanWrite reports whether Write would succeed now.
func (c *Channel) CanWrite() bool { return c.checkWrite() == nil }

// TxEmpty reports whether the peer has consumed every frame we sent.
func (c *Channel) TxEmpty() bool {
	w, r := c.tx().counters()
	return isEmpty(w, r, c.n)
}

func (c *Channel) advanceRx() {
	hdr := c.rx()
	hdr.SetReadCount(hdr.ReadCount() + 1)
	if c.rPos == c.n-1 {
		c.rPos = 0
	} else {
		c.rPos++
	}
}

func (c *Channel) advanceTx() {
	hdr := c.tx()
	hdr.SetWriteCount(hdr.WriteCount() + 1)
	if c.wPos == c.n-1 {
		c.wPos = 0
	} else {
		c.wPos++
	}
}

// notifyAfterRead signals the peer only on the full to non-full transition.
// The available count can only grow asynchronously, so the worst case is a
// spurious notification.
func (c *Channel) notifyAfterRead() {
	w, r := c.rx().counters()
	if availCount(w, r) == c.n-1 {
		c.notify.Notify()
	}
}

// notifyAfterWrite signals the peer only on the empty to non-empty transition.
// The available count can only shrink asynchronously, so the worst case is a
// spurious notification.
func (c *Channel) notifyAfterWrite() {
	w, r := c.tx().counters()
	if availCount(w, r) == 1 {
		c.notify.Notify()
	}
}

// Read copies len(p) bytes of the next incoming frame into p and releases the
// frame. len(p) must not exceed the frame size.
func (c *Channel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidBuffer
	}
	if uint64(len(p)) > uint64(c.fsize) {
		return 0, ErrTooLarge
	}
	// checkRead loads the peer's write counter atomically, which orders the
	// frame load below after it.
	if err := c.checkRead(); err != nil {
		return 0, err
	}
	n := copy(p, c.frame(c.rxOff, c.rPos))
	c.advanceRx()
	c.notifyAfterRead()
	return n, nil
}

// ReadFrame returns the next incoming frame in place. The slice aliases shared
// memory and is valid until ReadAdvance.
func (c *Channel) ReadFrame() ([]byte, error) {
	if err := c.checkRead(); err != nil {
		return nil, err
	}
	return c.frame(c.rxOff, c.rPos), nil
}

// ReadAdvance releases the frame returned by ReadFrame. The caller is
// expected to have observed the channel non-empty already; the check only
// catches programming errors and a reset that happened in between.
func (c *Channel) ReadAdvance() error {
	if err := c.checkRead(); err != nil {
		return err
	}
	c.advanceRx()
	c.notifyAfterRead()
	return nil
}

// Write copies p into the next outgoing frame, zero-filling the remainder,
// and publishes it. len(p) must not exceed the frame size.
func (c *Channel) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidBuffer
	}
	if uint64(len(p)) > uint64(c.fsize) {
		return 0, ErrTooLarge
	}
	if err := c.checkWrite(); err != nil {
		return 0, err
	}
	f := c.frame(c.txOff, c.wPos)
	clear(f)
	n := copy(f, p)
	c.advanceTx()
	c.notifyAfterWrite()
	return n, nil
}

// WriteFrame returns the next outgoing frame for in-place construction. The
// slice aliases shared memory; it is handed to the peer by WriteAdvance.
func (c *Channel) WriteFrame() ([]byte, error) {
	if err := c.checkWrite(); err != nil {
		return nil, err
	}
	return c.frame(c.txOff, c.wPos), nil
}

// WriteAdvance publishes the frame returned by WriteFrame.
func (c *Channel) WriteAdvance() error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	c.advanceTx()
	c.notifyAfterWrite()
	return nil
}

// Reset moves our side to SYNC and notifies the peer. The channel is usable
// again once Notified reports success.
func (c *Channel) Reset() {
	c.tx().SetState(StateSync)
	c.notify.Notify()
}

// resetCounters zeroes the counters we own. The peer is in SYNC (or has just
// acknowledged ours) and is not using them.
func (c *Channel) resetCounters() {
	c.tx().SetWriteCount(0)
	c.rx().SetReadCount(0)
	c.wPos = 0
	c.rPos = 0
	c.generation++
}

// Notified must be called, to completion, every time the peer signals us and
// before any Read or Write. It advances the handshake:
//
//	local  peer   action
//	-----  ----   -----------------------------------
//	any    SYNC   reset counters; move to ACK; notify
//	SYNC   ACK    reset counters; move to EST; notify
//	SYNC   EST    none
//	ACK    ACK    move to EST; notify
//	ACK    EST    move to EST; notify
//	EST    ACK    none
//	EST    EST    none
//
// It returns nil once the local side is established and ErrHandshakePending
// before that.
func (c *Channel) Notified() error {
	tx := c.tx()
	peer := c.rx().State()
	local := tx.State()

	switch {
	case peer == StateSync:
		// The counters must read as zero before the peer can see ACK.
		c.resetCounters()
		tx.SetState(StateAck)
		c.notify.Notify()
		util.LogDebug("ivc: %s -> ACK (peer SYNC)", local)

	case local == StateSync && peer == StateAck:
		c.resetCounters()
		tx.SetState(StateEstablished)
		c.notify.Notify()
		util.LogDebug("ivc: SYNC -> ESTABLISHED (peer ACK)")

	case local == StateAck && (peer == StateAck || peer == StateEstablished):
		// Our counters were zeroed on entry to ACK.
		tx.SetState(StateEstablished)
		c.notify.Notify()
		util.LogDebug("ivc: ACK -> ESTABLISHED (peer %s)", peer)
	}

	if tx.State() != StateEstablished {
		return ErrHandshakePending
	}
	return nil
}

// DebugState returns a snapshot of both queues. Values read from the peer's
// halves may be stale by the time they are printed.
func (c *Channel) DebugState() ChannelState {
	tx, rx := c.tx(), c.rx()
	return ChannelState{
		NumFrames:  c.n,
		FrameSize:  c.fsize,
		Local:      tx.State(),
		Peer:       rx.State(),
		TxWrite:    tx.WriteCount(),
		TxRead:     tx.ReadCount(),
		RxWrite:    rx.WriteCount(),
		RxRead:     rx.ReadCount(),
		WritePos:   c.wPos,
		ReadPos:    c.rPos,
		Generation: c.generation,
	}
}
