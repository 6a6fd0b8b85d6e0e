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
	"errors"
	"testing"
	"unsafe"
)

func TestChannelHeaderLayout(t *testing.T) {
	var h ChannelHeader
	if got := unsafe.Sizeof(h); got != HeaderSize {
		t.Fatalf("sizeof(ChannelHeader) = %d, want %d", got, HeaderSize)
	}
	if got := unsafe.Offsetof(h.wCount); got != 0x00 {
		t.Errorf("wCount offset = %#x, want 0x00", got)
	}
	if got := unsafe.Offsetof(h.state); got != 0x04 {
		t.Errorf("state offset = %#x, want 0x04", got)
	}
	if got := unsafe.Offsetof(h.rCount); got != 0x40 {
		t.Errorf("rCount offset = %#x, want 0x40", got)
	}
}

func TestRingPredicates(t *testing.T) {
	tests := []struct {
		name      string
		w, r, n   uint32
		wantEmpty bool
		wantFull  bool
	}{
		{"empty at zero", 0, 0, 4, true, false},
		{"empty after use", 17, 17, 4, true, false},
		{"one queued", 1, 0, 4, false, false},
		{"partial", 3, 1, 4, false, false},
		{"exactly full", 4, 0, 4, false, true},
		{"single frame full", 1, 0, 1, false, true},
		{"corrupt delta", 100, 90, 4, true, true},
		{"reader ahead of writer", 5, 10, 4, true, true},
		{"wrapped partial", 2, 0xFFFFFFFF, 4, false, false},
		{"wrapped full", 3, 0xFFFFFFFF, 4, false, true},
		{"wrapped empty", 0xFFFFFFFF, 0xFFFFFFFF, 4, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmpty(tt.w, tt.r, tt.n); got != tt.wantEmpty {
				t.Errorf("isEmpty(%d, %d, %d) = %v, want %v", tt.w, tt.r, tt.n, got, tt.wantEmpty)
			}
			if got := isFull(tt.w, tt.r, tt.n); got != tt.wantFull {
				t.Errorf("isFull(%d, %d, %d) = %v, want %v", tt.w, tt.r, tt.n, got, tt.wantFull)
			}
		})
	}
}

// Every delta strictly between 0 and n is neither empty nor full; every delta
// beyond n is both.
func TestRingPredicatesExhaustive(t *testing.T) {
	bases := []uint32{0, 1000, 0xFFFFFFF0}
	for n := uint32(1); n <= 8; n++ {
		for _, r := range bases {
			for d := uint32(0); d <= 2*n+1; d++ {
				w := r + d
				empty, full := isEmpty(w, r, n), isFull(w, r, n)
				switch {
				case d == 0:
					if !empty || full {
						t.Fatalf("n=%d w=%d r=%d: empty=%v full=%v, want empty only", n, w, r, empty, full)
					}
				case d < n:
					if empty || full {
						t.Fatalf("n=%d w=%d r=%d: empty=%v full=%v, want neither", n, w, r, empty, full)
					}
				case d == n:
					if empty || !full {
						t.Fatalf("n=%d w=%d r=%d: empty=%v full=%v, want full only", n, w, r, empty, full)
					}
				default:
					if !empty || !full {
						t.Fatalf("n=%d w=%d r=%d: empty=%v full=%v, want both", n, w, r, empty, full)
					}
				}
			}
		}
	}
}

func TestAlignSize(t *testing.T) {
	tests := []struct{ in, want uint64 }{
		{0, 0},
		{1, 64},
		{64, 64},
		{65, 128},
		{256, 256},
	}
	for _, tt := range tests {
		if got := AlignSize(tt.in); got != tt.want {
			t.Errorf("AlignSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := TotalQueueSize(4, 128); got != 128+4*128 {
		t.Errorf("TotalQueueSize(4, 128) = %d, want %d", got, 128+4*128)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateEstablished: "ESTABLISHED",
		StateSync:        "SYNC",
		StateAck:         "ACK",
		State(7):         "State(7)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", uint32(s), got, want)
		}
	}
}

func TestHeaderAt(t *testing.T) {
	mem := alignedMem(512)
	h, err := HeaderAt(mem, 256)
	if err != nil {
		t.Fatalf("HeaderAt(256) failed: %v", err)
	}
	h.SetWriteCount(7)
	h.SetState(StateAck)

	c, err := New(mem, 0, 256, 1, 64, NotifierFunc(func() {}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if st := c.DebugState(); st.TxWrite != 7 || st.Local != StateAck {
		t.Fatalf("channel does not see header writes: %+v", st)
	}

	if _, err := HeaderAt(mem, 512-64); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("HeaderAt past end error = %v, want ErrOutOfBounds", err)
	}
	if _, err := HeaderAt(mem, 2); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("HeaderAt(2) error = %v, want ErrMisaligned", err)
	}
}
