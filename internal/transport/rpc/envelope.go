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
	"encoding/binary"
	"errors"
)

// Envelope layout (8 bytes, little-endian) at the start of every frame:
//
//	request:  uint32 mrq    uint32 flags   payload...
//	response: int32  code   uint32 flags   payload...
const HeaderSize = 8

// Request flags
const (
	// FlagDoAck asks the peer to answer with a response frame.
	FlagDoAck uint32 = 1 << 0
	// FlagRingDoorbell asks the peer to ring our doorbell after answering.
	FlagRingDoorbell uint32 = 1 << 1
)

var errShortFrame = errors.New("rpc: frame shorter than envelope")

// RequestHeader is the on-wire request envelope.
type RequestHeader struct {
	MRQ   uint32
	Flags uint32
}

// ResponseHeader is the on-wire response envelope. Code is zero on success
// and a negative errno value otherwise.
type ResponseHeader struct {
	Code  int32
	Flags uint32
}

// PayloadCapacity returns how many payload bytes fit in a frame of frameSize.
func PayloadCapacity(frameSize uint32) int {
	if frameSize < HeaderSize {
		return 0
	}
	return int(frameSize) - HeaderSize
}

// EncodeRequest writes a request envelope and payload into frame.
func EncodeRequest(frame []byte, h RequestHeader, payload []byte) error {
	if len(frame) < HeaderSize+len(payload) {
		return ErrTooLarge
	}
	binary.LittleEndian.PutUint32(frame[0:4], h.MRQ)
	binary.LittleEndian.PutUint32(frame[4:8], h.Flags)
	copy(frame[HeaderSize:], payload)
	return nil
}

// DecodeRequest parses a request envelope. The returned payload aliases frame
// and runs to the end of it.
func DecodeRequest(frame []byte) (RequestHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return RequestHeader{}, nil, errShortFrame
	}
	h := RequestHeader{
		MRQ:   binary.LittleEndian.Uint32(frame[0:4]),
		Flags: binary.LittleEndian.Uint32(frame[4:8]),
	}
	return h, frame[HeaderSize:], nil
}

// EncodeResponse writes a response envelope and payload into frame.
func EncodeResponse(frame []byte, h ResponseHeader, payload []byte) error {
	if len(frame) < HeaderSize+len(payload) {
		return ErrTooLarge
	}
	binary.LittleEndian.PutUint32(frame[0:4], uint32(h.Code))
	binary.LittleEndian.PutUint32(frame[4:8], h.Flags)
	copy(frame[HeaderSize:], payload)
	return nil
}

// DecodeResponse parses a response envelope. The returned payload aliases frame.
func DecodeResponse(frame []byte) (ResponseHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return ResponseHeader{}, nil, errShortFrame
	}
	h := ResponseHeader{
		Code:  int32(binary.LittleEndian.Uint32(frame[0:4])),
		Flags: binary.LittleEndian.Uint32(frame[4:8]),
	}
	return h, frame[HeaderSize:], nil
}
