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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivcshm/ivc/internal/transport/ivc"
	"github.com/ivcshm/ivc/internal/util"
)

// Default polling policy.
const (
	DefaultTimeout      = time.Second
	DefaultPollInterval = time.Microsecond
)

// Doorbell is the platform interrupt between the two agents.
type Doorbell interface {
	// Enable allows the peer to ring us and advertises that we are listening.
	Enable()
	// PeerEnabled reports whether the peer has enabled its side.
	PeerEnabled() bool
	// Ring wakes the peer.
	Ring()
}

// Clock abstracts time for the bounded polls so tests can run them instantly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Options describe the carveout and polling policy of a Client.
type Options struct {
	RxBase    uintptr // incoming (peer -> client) queue header offset
	TxBase    uintptr // outgoing (client -> peer) queue header offset
	NumFrames uint32
	FrameSize uint32

	Timeout      time.Duration // per wait; DefaultTimeout when zero
	PollInterval time.Duration // DefaultPollInterval when zero
	Clock        Clock         // real time when nil
}

// Client issues one request at a time over an IVC channel and waits for the
// matching response. It is safe for concurrent use; requests are serialised.
type Client struct {
	mu    sync.Mutex
	mem   []byte
	opts  Options
	db    Doorbell
	ch    *ivc.Channel
	stats util.Stats

	// pending is set when a request timed out before its response arrived.
	pending bool
}

// NewClient returns a client over mem. No shared memory is touched until Init.
func NewClient(mem []byte, opts Options, db Doorbell) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Client{mem: mem, opts: opts, db: db}
}

// Stats returns the client's request counters.
func (c *Client) Stats() *util.Stats { return &c.stats }

// DebugState returns a snapshot of the underlying channel, or false before Init.
func (c *Client) DebugState() (ivc.ChannelState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return ivc.ChannelState{}, false
	}
	return c.ch.DebugState(), true
}

// ring is the channel's Notifier.
func (c *Client) ring() {
	c.stats.AddNotification()
	c.db.Ring()
}

// poll calls cond until it reports true, the timeout elapses or ctx ends.
func (c *Client) poll(ctx context.Context, cond func() (bool, error)) error {
	start := c.opts.Clock.Now()
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.opts.Clock.Now().Sub(start) >= c.opts.Timeout {
			return ErrTimeout
		}
		c.opts.Clock.Sleep(c.opts.PollInterval)
	}
}

// Init brings the channel up: it enables our doorbell, waits for the peer to
// enable its own, then resets the channel and drives the handshake until it
// is established. Calling Init on an initialised client is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		return nil
	}

	c.db.Enable()
	err := c.poll(ctx, func() (bool, error) { return c.db.PeerEnabled(), nil })
	if err != nil {
		return fmt.Errorf("waiting for peer doorbell: %w", err)
	}

	ch, err := ivc.New(c.mem, c.opts.RxBase, c.opts.TxBase, c.opts.NumFrames, c.opts.FrameSize, ivc.NotifierFunc(c.ring))
	if err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	ch.Reset()
	if err := c.establish(ctx, ch); err != nil {
		return fmt.Errorf("channel handshake: %w", err)
	}

	c.ch = ch
	util.LogDebug("rpc: channel established (%d x %d bytes)", ch.NumFrames(), ch.FrameSize())
	return nil
}

// establish runs Notified until the local side is established. The doorbell
// is rung on every round, including when Notified had nothing to do, in case
// the peer is the side still waiting.
func (c *Client) establish(ctx context.Context, ch *ivc.Channel) error {
	return c.poll(ctx, func() (bool, error) {
		err := ch.Notified()
		c.ring()
		return err == nil, nil
	})
}

// recoverPending settles the request that timed out last time. A late
// response that has arrived is discarded. If the peer has consumed the request
// but sends nothing within one timeout window, the request was dropped and the
// channel is reset so that a reply sent even later cannot be taken for the
// answer to a new request. A request the peer has not consumed yet yields
// ErrOutstanding.
func (c *Client) recoverPending(ctx context.Context, ch *ivc.Channel) error {
	if !ch.CanRead() {
		if !ch.TxEmpty() {
			return ErrOutstanding
		}
		err := c.poll(ctx, func() (bool, error) { return ch.CanRead(), nil })
		if errors.Is(err, ErrTimeout) {
			util.LogWarning("rpc: peer dropped a request, resetting channel")
			c.pending = false
			ch.Reset()
			if err := c.establish(ctx, ch); err != nil {
				return fmt.Errorf("channel handshake: %w", err)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
	if err := ch.ReadAdvance(); err != nil {
		return err
	}
	c.pending = false
	util.LogDebug("rpc: discarded late response")
	return nil
}

// SendRequest writes req as message mrq, waits for the response and copies up
// to len(resp) payload bytes into resp, which may be larger than a frame. A
// non-zero response code is returned as *RemoteError after the payload has
// been copied.
//
// On ErrTimeout the incoming queue is left untouched; the late response is
// discarded by the next call.
func (c *Client) SendRequest(ctx context.Context, mrq uint32, req, resp []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.ch
	if ch == nil {
		return ErrNotInitialized
	}
	capacity := PayloadCapacity(ch.FrameSize())
	if len(req) > capacity {
		return fmt.Errorf("%w: request %d > %d", ErrTooLarge, len(req), capacity)
	}

	// The peer reset the channel since our last request.
	if ch.State() != ivc.StateEstablished || ch.PeerState() == ivc.StateSync {
		util.LogDebug("rpc: re-establishing channel (local %s, peer %s)", ch.State(), ch.PeerState())
		c.pending = false
		if err := c.establish(ctx, ch); err != nil {
			return fmt.Errorf("channel handshake: %w", err)
		}
	}

	if c.pending {
		if err := c.recoverPending(ctx, ch); err != nil {
			return err
		}
	}

	frame, err := ch.WriteFrame()
	if err != nil {
		return err
	}
	clear(frame)
	if err := EncodeRequest(frame, RequestHeader{MRQ: mrq, Flags: FlagDoAck}, req); err != nil {
		return err
	}
	// Publishing the frame rings the doorbell on the empty to non-empty
	// transition through the channel's Notifier.
	if err := ch.WriteAdvance(); err != nil {
		return err
	}
	c.stats.AddRequest(len(req))

	err = c.poll(ctx, func() (bool, error) {
		if ch.PeerState() == ivc.StateSync {
			return false, ivc.ErrConnectionReset
		}
		return ch.CanRead(), nil
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			c.pending = true
			c.stats.AddTimeout()
			util.LogWarning("rpc: mrq %d: no response after %v", mrq, c.opts.Timeout)
		}
		return fmt.Errorf("mrq %d: %w", mrq, err)
	}

	frame, err = ch.ReadFrame()
	if err != nil {
		return err
	}
	hdr, payload, err := DecodeResponse(frame)
	if err != nil {
		return err
	}
	n := copy(resp, payload)
	if err := ch.ReadAdvance(); err != nil {
		return err
	}
	c.stats.AddResponse(n, hdr.Code)

	if hdr.Code != 0 {
		return &RemoteError{MRQ: mrq, Code: hdr.Code}
	}
	return nil
}
