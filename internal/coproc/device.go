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

package coproc

import (
	"encoding/binary"

	"github.com/ivcshm/ivc/internal/mrq"
)

func putWord(b []byte, v uint32) int {
	binary.LittleEndian.PutUint32(b, v)
	return 4
}

func (r *Responder) handlePing(req, resp []byte) (int, int32) {
	var p mrq.PingRequest
	if err := p.UnmarshalBinary(req); err != nil {
		return 0, mrq.ErrnoEINVAL
	}
	return putWord(resp, mrq.PingReply(p.Challenge)), 0
}

func (r *Responder) handleReset(req, resp []byte) (int, int32) {
	var p mrq.ResetRequest
	if err := p.UnmarshalBinary(req); err != nil {
		return 0, mrq.ErrnoEINVAL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Cmd == mrq.ResetGetMaxID {
		return putWord(resp, r.maxResets), 0
	}
	if p.ResetID > r.maxResets {
		return 0, mrq.ErrnoEINVAL
	}
	switch p.Cmd {
	case mrq.ResetAssert:
		r.asserted[p.ResetID] = true
	case mrq.ResetDeassert:
		r.asserted[p.ResetID] = false
	case mrq.ResetModule:
		r.asserted[p.ResetID] = false
		r.resets[p.ResetID]++
	default:
		return 0, mrq.ErrnoENOTSUP
	}
	return 0, 0
}

func (r *Responder) handleClk(req, resp []byte) (int, int32) {
	var p mrq.ClkRequest
	if err := p.UnmarshalBinary(req); err != nil {
		return 0, mrq.ErrnoEINVAL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch p.Cmd {
	case mrq.ClkEnable:
		r.clocks[p.ClkID] = true
	case mrq.ClkDisable:
		r.clocks[p.ClkID] = false
	case mrq.ClkIsEnabled:
		var v uint32
		if r.clocks[p.ClkID] {
			v = 1
		}
		return putWord(resp, v), 0
	default:
		return 0, mrq.ErrnoENOTSUP
	}
	return 0, 0
}

// ClockEnabled reports the simulated gate state of clock id.
func (r *Responder) ClockEnabled(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clocks[id]
}

// ResetAsserted reports whether reset line id is held.
func (r *Responder) ResetAsserted(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asserted[id]
}

// ResetCount returns how many module resets line id has seen.
func (r *Responder) ResetCount(id uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets[id]
}
