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

import "errors"

var (
	// ErrConnectionReset is returned by read and write operations while the
	// local side has not reached StateEstablished.
	ErrConnectionReset = errors.New("ivc: connection reset")

	// ErrWouldBlock indicates the incoming queue is empty (read) or the
	// outgoing queue is full (write).
	ErrWouldBlock = errors.New("ivc: would block")

	// ErrTooLarge indicates a copy larger than one frame.
	ErrTooLarge = errors.New("ivc: larger than frame")

	// ErrInvalidBuffer indicates a zero-length buffer passed to Read or Write.
	ErrInvalidBuffer = errors.New("ivc: invalid buffer")

	// ErrHandshakePending is returned by Notified until the local side is
	// established.
	ErrHandshakePending = errors.New("ivc: handshake pending")
)

// Construction errors. All of them wrap ErrInvalidParams.
var (
	ErrInvalidParams = errors.New("ivc: invalid channel parameters")
	ErrMisaligned    = wrapParams("misaligned")
	ErrOverlap       = wrapParams("queue regions overlap")
	ErrOverflow      = wrapParams("nframes * frame_size overflows")
	ErrFrameTooLarge = wrapParams("frame size too large")
	ErrOutOfBounds   = wrapParams("queue outside shared memory")
)

type paramError struct{ msg string }

func wrapParams(msg string) error { return &paramError{msg: msg} }

func (e *paramError) Error() string { return "ivc: " + e.msg }

func (e *paramError) Unwrap() error { return ErrInvalidParams }
