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

package mrq

import (
	"context"
	"encoding"
	"encoding/binary"
	"fmt"
)

// Requester sends one request and waits for its response. *rpc.Client
// satisfies it.
type Requester interface {
	SendRequest(ctx context.Context, mrq uint32, req, resp []byte) error
}

// Service issues typed MRQ calls over a Requester.
type Service struct {
	r Requester
}

// NewService returns a Service over r.
func NewService(r Requester) *Service {
	return &Service{r: r}
}

func (s *Service) call(ctx context.Context, mrq uint32, req encoding.BinaryMarshaler, resp []byte) error {
	b, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	return s.r.SendRequest(ctx, mrq, b, resp)
}

// Ping sends a challenge and checks the peer's answer.
func (s *Service) Ping(ctx context.Context, challenge uint32) (uint32, error) {
	var resp [PingResponseSize]byte
	if err := s.call(ctx, MRQPing, PingRequest{Challenge: challenge}, resp[:]); err != nil {
		return 0, err
	}
	reply := binary.LittleEndian.Uint32(resp[:])
	if reply != PingReply(challenge) {
		return reply, fmt.Errorf("mrq: ping %d answered with %d", challenge, reply)
	}
	return reply, nil
}

func (s *Service) reset(ctx context.Context, cmd, id uint32) error {
	return s.call(ctx, MRQReset, ResetRequest{Cmd: cmd, ResetID: id}, nil)
}

// ResetModule pulses the reset line of module id.
func (s *Service) ResetModule(ctx context.Context, id uint32) error {
	return s.reset(ctx, ResetModule, id)
}

// AssertReset holds module id in reset.
func (s *Service) AssertReset(ctx context.Context, id uint32) error {
	return s.reset(ctx, ResetAssert, id)
}

// DeassertReset releases module id from reset.
func (s *Service) DeassertReset(ctx context.Context, id uint32) error {
	return s.reset(ctx, ResetDeassert, id)
}

// MaxResetID returns the highest reset identifier the peer knows.
func (s *Service) MaxResetID(ctx context.Context) (uint32, error) {
	var resp [4]byte
	if err := s.call(ctx, MRQReset, ResetRequest{Cmd: ResetGetMaxID}, resp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(resp[:]), nil
}

// EnableClock ungates clock id.
func (s *Service) EnableClock(ctx context.Context, id uint32) error {
	return s.call(ctx, MRQClk, ClkRequest{Cmd: ClkEnable, ClkID: id}, nil)
}

// DisableClock gates clock id.
func (s *Service) DisableClock(ctx context.Context, id uint32) error {
	return s.call(ctx, MRQClk, ClkRequest{Cmd: ClkDisable, ClkID: id}, nil)
}

// ClockEnabled reports whether clock id is ungated.
func (s *Service) ClockEnabled(ctx context.Context, id uint32) (bool, error) {
	var resp [4]byte
	if err := s.call(ctx, MRQClk, ClkRequest{Cmd: ClkIsEnabled, ClkID: id}, resp[:]); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(resp[:]) != 0, nil
}
