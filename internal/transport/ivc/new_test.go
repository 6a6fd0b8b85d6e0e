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
)

func TestNewValidation(t *testing.T) {
	mem := alignedMem(0x4000)
	nop := NotifierFunc(func() {})

	tests := []struct {
		name      string
		mem       []byte
		rx, tx    uintptr
		nframes   uint32
		frameSize uint32
		notifier  Notifier
		wantErr   error
	}{
		{"overlapping queues", mem, 0x1040, 0x1000, 1, 128, nop, ErrOverlap},
		{"identical bases", mem, 0x1000, 0x1000, 1, 64, nop, ErrOverlap},
		{"zero frames", mem, 0, 0x100, 0, 64, nop, ErrInvalidParams},
		{"misaligned rx base", mem, 0x1010, 0x2000, 1, 64, nop, ErrMisaligned},
		{"misaligned tx base", mem, 0, 0x2004, 1, 64, nop, ErrMisaligned},
		{"misaligned frame size", mem, 0, 0x1000, 1, 100, nop, ErrMisaligned},
		{"zero frame size", mem, 0, 0x1000, 1, 0, nop, ErrMisaligned},
		{"size overflow", mem, 0, 0x1000, 1 << 16, 1 << 16, nop, ErrOverflow},
		{"frame too large", mem, 0, 0x1000, 1, 1<<31 + 64, nop, ErrFrameTooLarge},
		{"outside memory", mem[:0x100], 0, 0x100, 1, 64, nop, ErrOutOfBounds},
		{"unaligned memory", mem[2 : 0x1000+2], 0, 0x400, 1, 64, nop, ErrMisaligned},
		{"nil notifier", mem, 0, 0x1000, 1, 64, nil, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.mem, tt.rx, tt.tx, tt.nframes, tt.frameSize, tt.notifier)
			if err == nil {
				t.Fatalf("New() = %+v, want error", c.DebugState())
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("New() error = %v does not wrap ErrInvalidParams", err)
			}
		})
	}
}

func TestNewAccepts(t *testing.T) {
	mem := alignedMem(0x1000)
	nop := NotifierFunc(func() {})

	tests := []struct {
		name      string
		rx, tx    uintptr
		nframes   uint32
		frameSize uint32
	}{
		{"adjacent queues", 0, 0x100, 1, 128},
		{"reversed order", 0x100, 0, 1, 128},
		{"many small frames", 0, 0x800, 30, 64},
		{"exactly fills memory", 0, 0x800, 1, 0x800 - HeaderSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(mem, tt.rx, tt.tx, tt.nframes, tt.frameSize, nop)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			if c.NumFrames() != tt.nframes || c.FrameSize() != tt.frameSize {
				t.Fatalf("geometry = %d x %d, want %d x %d",
					c.NumFrames(), c.FrameSize(), tt.nframes, tt.frameSize)
			}
		})
	}
}

// A zeroed carveout reads as established on both sides.
func TestZeroMemoryIsEstablished(t *testing.T) {
	p := newTestPair(t, 1, 64)
	if p.a.State() != StateEstablished || p.a.PeerState() != StateEstablished {
		t.Fatalf("states = %v/%v, want ESTABLISHED", p.a.State(), p.a.PeerState())
	}
	if err := p.a.Notified(); err != nil {
		t.Fatalf("Notified() = %v, want nil", err)
	}
}
