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

// Package mrq defines the message request identifiers and payload encodings
// understood by the management coprocessor, and a typed Service over any
// request/response transport.
package mrq

import (
	"encoding/binary"
	"fmt"
)

// Message request identifiers.
const (
	MRQPing  uint32 = 0
	MRQReset uint32 = 20
	MRQClk   uint32 = 22
)

// Reset sub-commands carried in the first word of an MRQReset request.
const (
	ResetAssert   uint32 = 1
	ResetDeassert uint32 = 2
	ResetModule   uint32 = 3
	ResetGetMaxID uint32 = 4
)

// Clock sub-commands carried in the top byte of an MRQClk request.
const (
	ClkIsEnabled uint32 = 6
	ClkEnable    uint32 = 7
	ClkDisable   uint32 = 8
)

// Response codes returned by the coprocessor, negated errno values.
const (
	ErrnoENODEV  int32 = -19
	ErrnoEINVAL  int32 = -22
	ErrnoENOTSUP int32 = -95
)

// clkIDMask selects the clock identifier in a packed clock command word.
const clkIDMask = 0x00FFFFFF

// Sizes of the fixed payloads.
const (
	PingRequestSize  = 4
	PingResponseSize = 4
	ResetRequestSize = 8
	ClkRequestSize   = 4
)

// PingRequest carries a challenge the peer answers with challenge << 1.
type PingRequest struct {
	Challenge uint32
}

func (r PingRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, PingRequestSize)
	binary.LittleEndian.PutUint32(b, r.Challenge)
	return b, nil
}

func (r *PingRequest) UnmarshalBinary(b []byte) error {
	if len(b) < PingRequestSize {
		return fmt.Errorf("mrq: ping request too short: %d bytes", len(b))
	}
	r.Challenge = binary.LittleEndian.Uint32(b)
	return nil
}

// PingReply is the expected answer to a ping challenge.
func PingReply(challenge uint32) uint32 {
	return challenge << 1
}

// ResetRequest addresses one reset line.
type ResetRequest struct {
	Cmd     uint32
	ResetID uint32
}

func (r ResetRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, ResetRequestSize)
	binary.LittleEndian.PutUint32(b[0:4], r.Cmd)
	binary.LittleEndian.PutUint32(b[4:8], r.ResetID)
	return b, nil
}

func (r *ResetRequest) UnmarshalBinary(b []byte) error {
	if len(b) < ResetRequestSize {
		return fmt.Errorf("mrq: reset request too short: %d bytes", len(b))
	}
	r.Cmd = binary.LittleEndian.Uint32(b[0:4])
	r.ResetID = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// ClkRequest addresses one clock. The command and clock identifier share a
// word: cmd<<24 | id.
type ClkRequest struct {
	Cmd   uint32
	ClkID uint32
}

func (r ClkRequest) MarshalBinary() ([]byte, error) {
	if r.ClkID&^clkIDMask != 0 {
		return nil, fmt.Errorf("mrq: clock id %#x does not fit in 24 bits", r.ClkID)
	}
	b := make([]byte, ClkRequestSize)
	binary.LittleEndian.PutUint32(b, r.Cmd<<24|r.ClkID)
	return b, nil
}

func (r *ClkRequest) UnmarshalBinary(b []byte) error {
	if len(b) < ClkRequestSize {
		return fmt.Errorf("mrq: clock request too short: %d bytes", len(b))
	}
	w := binary.LittleEndian.Uint32(b)
	r.Cmd = w >> 24
	r.ClkID = w & clkIDMask
	return nil
}
