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
	"sync/atomic"
	"testing"
	"unsafe"
)

// alignedMem returns a zeroed buffer backed by uint64 words so the counters
// inside it can be accessed atomically.
func alignedMem(size int) []byte {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

// countNotifier records how many times a channel signalled its peer.
type countNotifier struct {
	n atomic.Int32
}

func (c *countNotifier) Notify() { c.n.Add(1) }

func (c *countNotifier) count() int { return int(c.n.Load()) }

func (c *countNotifier) reset() { c.n.Store(0) }

// testPair is two channels over one buffer. Queue A carries a -> b traffic,
// queue B carries b -> a.
type testPair struct {
	mem    []byte
	a, b   *Channel
	na, nb *countNotifier
}

func newTestPair(t *testing.T, nframes, frameSize uint32) *testPair {
	t.Helper()

	qsize := AlignSize(TotalQueueSize(nframes, frameSize))
	mem := alignedMem(int(2 * qsize))
	baseA, baseB := uintptr(0), uintptr(qsize)

	p := &testPair{mem: mem, na: &countNotifier{}, nb: &countNotifier{}}
	var err error
	p.a, err = New(mem, baseB, baseA, nframes, frameSize, p.na)
	if err != nil {
		t.Fatalf("New(a) failed: %v", err)
	}
	p.b, err = New(mem, baseA, baseB, nframes, frameSize, p.nb)
	if err != nil {
		t.Fatalf("New(b) failed: %v", err)
	}
	return p
}

// establish runs the handshake from both sides until both are established.
func (p *testPair) establish(t *testing.T) {
	t.Helper()

	p.a.Reset()
	p.b.Reset()
	for i := 0; i < 4; i++ {
		errA := p.a.Notified()
		errB := p.b.Notified()
		if errA == nil && errB == nil {
			p.na.reset()
			p.nb.reset()
			return
		}
	}
	t.Fatalf("handshake did not converge: a=%+v b=%+v", p.a.DebugState(), p.b.DebugState())
}
