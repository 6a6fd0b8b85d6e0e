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

package shm

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/ivcshm/ivc/internal/util"
)

// Doorbell is one role's end of the doorbell pair in a segment header. Each
// side owns an enable word and sleeps on its own bell word; ringing bumps the
// other side's bell and wakes it.
//
// Doorbell satisfies both ivc.Notifier and rpc.Doorbell.
type Doorbell struct {
	h    *SegmentHeader
	role Role
}

// Doorbell returns the doorbell for role.
func (s *Segment) Doorbell(r Role) *Doorbell {
	return &Doorbell{h: s.H, role: r}
}

func (d *Doorbell) other() Role {
	if d.role == RoleClient {
		return RolePeer
	}
	return RoleClient
}

// Enable advertises that this side is listening and records the calling
// process.
func (d *Doorbell) Enable() {
	d.h.SetPID(d.role, uint32(os.Getpid()))
	atomic.StoreUint32(d.h.enabledWord(d.role), 1)
}

// Disable withdraws Enable.
func (d *Doorbell) Disable() {
	atomic.StoreUint32(d.h.enabledWord(d.role), 0)
}

// PeerEnabled reports whether the other side is listening and the segment is
// still open.
func (d *Doorbell) PeerEnabled() bool {
	return d.h.Enabled(d.other()) && !d.h.Closed()
}

// Ring wakes the other side.
func (d *Doorbell) Ring() {
	addr := d.h.bellWord(d.other())
	atomic.AddUint32(addr, 1)
	if _, err := futexWake(addr, 1); err != nil {
		util.LogDebug("shm: %s doorbell wake failed: %v", d.role, err)
	}
}

// Notify implements ivc.Notifier.
func (d *Doorbell) Notify() { d.Ring() }

// Sequence samples our bell word. Pass the result to Wait after checking
// for work, so a ring in between is not lost.
func (d *Doorbell) Sequence() uint32 {
	return atomic.LoadUint32(d.h.bellWord(d.role))
}

// Wait blocks until our bell has been rung since seq was sampled or timeout
// elapses. It reports whether the bell was rung. Spurious wakeups report
// false.
func (d *Doorbell) Wait(seq uint32, timeout time.Duration) (bool, error) {
	err := futexWaitTimeout(d.h.bellWord(d.role), seq, timeout)
	if errors.Is(err, ErrFutexTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.Sequence() != seq, nil
}
