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

// One side resets while the other is established: both converge within two
// notifications each and each zeroes its counters exactly once.
func TestHandshakeAfterPeerReset(t *testing.T) {
	p := newTestPair(t, 4, 64)
	p.establish(t)
	genA, genB := p.a.Generation(), p.b.Generation()

	// Put some traffic in flight so there is something to zero.
	for i := 0; i < 3; i++ {
		if _, err := p.a.Write([]byte{byte(i)}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	p.b.Reset()
	if p.b.State() != StateSync {
		t.Fatalf("b.State() = %v after Reset, want SYNC", p.b.State())
	}

	callsA, callsB := 0, 0
	for callsA < 2 || callsB < 2 {
		if p.a.State() == StateEstablished && p.b.State() == StateEstablished &&
			p.a.PeerState() == StateEstablished && p.b.PeerState() == StateEstablished {
			break
		}
		if callsA < 2 {
			p.a.Notified()
			callsA++
		}
		if callsB < 2 {
			p.b.Notified()
			callsB++
		}
	}

	if err := p.a.Notified(); err != nil {
		t.Fatalf("a not established: %v (%+v)", err, p.a.DebugState())
	}
	if err := p.b.Notified(); err != nil {
		t.Fatalf("b not established: %v (%+v)", err, p.b.DebugState())
	}
	if got := p.a.Generation() - genA; got != 1 {
		t.Errorf("a zeroed its counters %d times, want 1", got)
	}
	if got := p.b.Generation() - genB; got != 1 {
		t.Errorf("b zeroed its counters %d times, want 1", got)
	}

	st := p.a.DebugState()
	if st.TxWrite != 0 || st.RxRead != 0 || st.WritePos != 0 || st.ReadPos != 0 {
		t.Fatalf("a counters not zeroed: %+v", st)
	}
	if p.b.CanRead() {
		t.Fatal("frames from before the reset are still readable")
	}

	if _, err := p.a.Write([]byte("after")); err != nil {
		t.Fatalf("Write after handshake failed: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := p.b.Read(buf); err != nil || string(buf) != "after" {
		t.Fatalf("Read after handshake = %q, %v", buf, err)
	}
}

func TestHandshakeTransitions(t *testing.T) {
	tests := []struct {
		name       string
		local      State
		peer       State
		wantLocal  State
		wantZeroed bool
		wantNotify bool
		wantErr    error
	}{
		{"EST/SYNC", StateEstablished, StateSync, StateAck, true, true, ErrHandshakePending},
		{"SYNC/SYNC", StateSync, StateSync, StateAck, true, true, ErrHandshakePending},
		{"ACK/SYNC", StateAck, StateSync, StateAck, true, true, ErrHandshakePending},
		{"SYNC/ACK", StateSync, StateAck, StateEstablished, true, true, nil},
		{"SYNC/EST", StateSync, StateEstablished, StateSync, false, false, ErrHandshakePending},
		{"ACK/ACK", StateAck, StateAck, StateEstablished, false, true, nil},
		{"ACK/EST", StateAck, StateEstablished, StateEstablished, false, true, nil},
		{"EST/ACK", StateEstablished, StateAck, StateEstablished, false, false, nil},
		{"EST/EST", StateEstablished, StateEstablished, StateEstablished, false, false, nil},
		{"EST/unknown", StateEstablished, State(9), StateEstablished, false, false, nil},
		{"SYNC/unknown", StateSync, State(9), StateSync, false, false, ErrHandshakePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPair(t, 2, 64)
			p.a.tx().SetState(tt.local)
			p.a.rx().SetState(tt.peer)

			err := p.a.Notified()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Notified() error = %v, want %v", err, tt.wantErr)
			}
			if got := p.a.State(); got != tt.wantLocal {
				t.Errorf("local state = %v, want %v", got, tt.wantLocal)
			}
			if got := p.a.Generation() == 1; got != tt.wantZeroed {
				t.Errorf("counters zeroed = %v, want %v", got, tt.wantZeroed)
			}
			if got := p.na.count() == 1; got != tt.wantNotify {
				t.Errorf("notified = %v (count %d), want %v", got, p.na.count(), tt.wantNotify)
			}
		})
	}
}

func TestColdStartBothReset(t *testing.T) {
	p := newTestPair(t, 1, 64)
	p.a.Reset()
	p.b.Reset()
	if p.na.count() != 1 || p.nb.count() != 1 {
		t.Fatalf("Reset notified a=%d b=%d times, want 1 each", p.na.count(), p.nb.count())
	}

	if err := p.a.Notified(); !errors.Is(err, ErrHandshakePending) {
		t.Fatalf("a.Notified() = %v, want ErrHandshakePending", err)
	}
	if err := p.b.Notified(); err != nil {
		t.Fatalf("b.Notified() = %v, want nil", err)
	}
	if err := p.a.Notified(); err != nil {
		t.Fatalf("a.Notified() = %v, want nil", err)
	}
	if p.a.Generation() != 1 || p.b.Generation() != 1 {
		t.Fatalf("generations a=%d b=%d, want 1 each", p.a.Generation(), p.b.Generation())
	}
}

// A reset seen in the middle of a read sequence surfaces as
// ErrConnectionReset once the notification has been processed.
func TestResetDuringTraffic(t *testing.T) {
	p := newTestPair(t, 2, 64)
	p.establish(t)

	if _, err := p.b.Write([]byte("stale")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := p.a.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	p.b.Reset()
	if err := p.a.Notified(); !errors.Is(err, ErrHandshakePending) {
		t.Fatalf("a.Notified() = %v, want ErrHandshakePending", err)
	}
	if err := p.a.ReadAdvance(); !errors.Is(err, ErrConnectionReset) {
		t.Fatalf("ReadAdvance during handshake = %v, want ErrConnectionReset", err)
	}
	if _, err := p.a.Write([]byte("x")); !errors.Is(err, ErrConnectionReset) {
		t.Fatalf("Write during handshake = %v, want ErrConnectionReset", err)
	}

	if err := p.b.Notified(); err != nil {
		t.Fatalf("b.Notified() = %v", err)
	}
	if err := p.a.Notified(); err != nil {
		t.Fatalf("a.Notified() = %v", err)
	}
	if _, err := p.a.Read(make([]byte, 5)); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Read after re-establish = %v, want ErrWouldBlock", err)
	}
}
