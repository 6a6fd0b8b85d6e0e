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

package rpc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/ivcshm/ivc/internal/transport/ivc"
)

const (
	testFrames    = 1
	testFrameSize = 128
)

func alignedMem(size int) []byte {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

// fakeClock advances only when slept on. onSleep runs after every Sleep and
// is where tests let the peer make progress.
type fakeClock struct {
	now     time.Time
	sleeps  int
	onSleep func()
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep()
	}
}

type fakeDoorbell struct {
	enabled     atomic.Bool
	peerEnabled atomic.Bool
	rings       atomic.Int32
}

func (d *fakeDoorbell) Enable()           { d.enabled.Store(true) }
func (d *fakeDoorbell) PeerEnabled() bool { return d.peerEnabled.Load() }
func (d *fakeDoorbell) Ring()             { d.rings.Add(1) }

// fakePeer answers every request by echoing its payload.
type fakePeer struct {
	ch      *ivc.Channel
	paused  bool  // do nothing at all, not even the handshake
	silent  bool  // run the handshake but leave requests unanswered
	code    int32 // response code
	drop    int   // requests to consume without answering
	handled int
	lastReq RequestHeader
}

func (p *fakePeer) step() {
	if p.paused {
		return
	}
	if err := p.ch.Notified(); err != nil {
		return
	}
	if p.silent {
		return
	}
	frame, err := p.ch.ReadFrame()
	if err != nil {
		return
	}
	req, payload, err := DecodeRequest(frame)
	if err != nil {
		return
	}
	var out [testFrameSize - HeaderSize]byte
	copy(out[:], payload)
	if err := p.ch.ReadAdvance(); err != nil {
		return
	}
	p.lastReq = req
	if p.drop > 0 {
		p.drop--
		return
	}
	if req.Flags&FlagDoAck == 0 {
		return
	}

	wf, err := p.ch.WriteFrame()
	if err != nil {
		return
	}
	if err := EncodeResponse(wf, ResponseHeader{Code: p.code}, out[:]); err != nil {
		return
	}
	if err := p.ch.WriteAdvance(); err != nil {
		return
	}
	p.handled++
}

type harness struct {
	clock  *fakeClock
	db     *fakeDoorbell
	peer   *fakePeer
	client *Client
}

// newHarness lays out queue A (client -> peer) at 0 and queue B right after.
func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	qsize := uintptr(ivc.AlignSize(ivc.TotalQueueSize(testFrames, testFrameSize)))
	mem := alignedMem(int(2 * qsize))

	peerCh, err := ivc.New(mem, 0, qsize, testFrames, testFrameSize, ivc.NotifierFunc(func() {}))
	if err != nil {
		t.Fatalf("ivc.New(peer) failed: %v", err)
	}

	h := &harness{
		db:   &fakeDoorbell{},
		peer: &fakePeer{ch: peerCh},
	}
	h.db.peerEnabled.Store(true)
	h.clock = &fakeClock{now: time.Unix(0, 0), onSleep: h.peer.step}
	h.client = NewClient(mem, Options{
		RxBase:       qsize,
		TxBase:       0,
		NumFrames:    testFrames,
		FrameSize:    testFrameSize,
		Timeout:      timeout,
		PollInterval: time.Microsecond,
		Clock:        h.clock,
	}, h.db)
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	if err := h.client.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
}
