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

// Package coproc simulates the management coprocessor: it serves MRQ
// requests on the peer side of an IVC channel.
package coproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivcshm/ivc/internal/mrq"
	"github.com/ivcshm/ivc/internal/transport/ivc"
	"github.com/ivcshm/ivc/internal/transport/rpc"
	"github.com/ivcshm/ivc/internal/util"
)

// DefaultMaxResetID is the highest reset line the simulated device exposes.
const DefaultMaxResetID = 255

// waitSlice bounds each doorbell wait in Serve so cancellation is noticed.
const waitSlice = 10 * time.Millisecond

// Doorbell is the responder's side of the doorbell pair. *shm.Doorbell
// satisfies it.
type Doorbell interface {
	Enable()
	Ring()
	Sequence() uint32
	Wait(seq uint32, timeout time.Duration) (bool, error)
}

// HandlerFunc serves one request. It writes its answer into resp, whose
// length is the frame payload capacity, and returns the number of bytes
// written and the response code.
type HandlerFunc func(req, resp []byte) (n int, code int32)

// Responder owns the peer side of a channel.
type Responder struct {
	ch       *ivc.Channel
	db       Doorbell
	handlers map[uint32]HandlerFunc
	stats    util.Stats

	// req is scratch space for the request payload once its frame is released.
	req  []byte
	resp []byte

	mu        sync.Mutex
	clocks    map[uint32]bool
	asserted  map[uint32]bool
	resets    map[uint32]int
	maxResets uint32
}

// NewResponder opens the peer side of the channel in mem with the default
// ping, reset and clock handlers installed.
func NewResponder(mem []byte, rxBase, txBase uintptr, nframes, frameSize uint32, db Doorbell) (*Responder, error) {
	ch, err := ivc.New(mem, rxBase, txBase, nframes, frameSize, ivc.NotifierFunc(db.Ring))
	if err != nil {
		return nil, fmt.Errorf("coproc: %w", err)
	}
	capacity := rpc.PayloadCapacity(frameSize)
	r := &Responder{
		ch:        ch,
		db:        db,
		handlers:  make(map[uint32]HandlerFunc),
		req:       make([]byte, capacity),
		resp:      make([]byte, capacity),
		clocks:    make(map[uint32]bool),
		asserted:  make(map[uint32]bool),
		resets:    make(map[uint32]int),
		maxResets: DefaultMaxResetID,
	}
	r.Handle(mrq.MRQPing, r.handlePing)
	r.Handle(mrq.MRQReset, r.handleReset)
	r.Handle(mrq.MRQClk, r.handleClk)
	return r, nil
}

// Handle registers h for id, replacing any previous handler. It must be
// called before Serve.
func (r *Responder) Handle(id uint32, h HandlerFunc) {
	r.handlers[id] = h
}

// Stats returns the responder's request counters.
func (r *Responder) Stats() *util.Stats { return &r.stats }

// Channel returns the underlying channel.
func (r *Responder) Channel() *ivc.Channel { return r.ch }

// Step processes one notification: it advances the handshake and serves at
// most one request. It reports whether a request was consumed.
func (r *Responder) Step() (bool, error) {
	if err := r.ch.Notified(); err != nil {
		if errors.Is(err, ivc.ErrHandshakePending) {
			return false, nil
		}
		return false, err
	}

	frame, err := r.ch.ReadFrame()
	if errors.Is(err, ivc.ErrWouldBlock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	hdr, payload, err := rpc.DecodeRequest(frame)
	if err != nil {
		return false, err
	}
	wantAck := hdr.Flags&rpc.FlagDoAck != 0
	// Leave the request queued until there is room for its answer; the
	// client's read of the previous answer wakes us.
	if wantAck && !r.ch.CanWrite() {
		return false, nil
	}

	n := copy(r.req, payload)
	if err := r.ch.ReadAdvance(); err != nil {
		return false, err
	}
	r.stats.AddRequest(n)

	clear(r.resp)
	h, ok := r.handlers[hdr.MRQ]
	var (
		written int
		code    int32
	)
	if ok {
		written, code = h(r.req[:n], r.resp)
	} else {
		code = mrq.ErrnoENODEV
		util.LogWarning("coproc: unknown mrq %d", hdr.MRQ)
	}
	util.LogDebug("coproc: mrq %d -> code %d (%d bytes)", hdr.MRQ, code, written)

	if !wantAck {
		return true, nil
	}
	out, err := r.ch.WriteFrame()
	if err != nil {
		return true, err
	}
	clear(out)
	if err := rpc.EncodeResponse(out, rpc.ResponseHeader{Code: code}, r.resp[:written]); err != nil {
		return true, err
	}
	if err := r.ch.WriteAdvance(); err != nil {
		return true, err
	}
	r.stats.AddResponse(written, code)
	if hdr.Flags&rpc.FlagRingDoorbell != 0 {
		r.db.Ring()
	}
	return true, nil
}

// Serve enables the doorbell, resets the channel and answers requests until
// ctx is cancelled.
func (r *Responder) Serve(ctx context.Context) error {
	r.db.Enable()
	r.ch.Reset()

	for ctx.Err() == nil {
		seq := r.db.Sequence()
		progressed, err := r.Step()
		if err != nil {
			return fmt.Errorf("coproc: %w", err)
		}
		if progressed {
			continue
		}
		if _, err := r.db.Wait(seq, waitSlice); err != nil {
			return fmt.Errorf("coproc: doorbell wait: %w", err)
		}
	}
	return nil
}
