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
	"errors"
	"fmt"

	"github.com/ivcshm/ivc/internal/transport/ivc"
)

var (
	// ErrTimeout is returned when the peer does not answer within the
	// configured window, either while coming up or while a request is waiting
	// for its response.
	ErrTimeout = errors.New("rpc: timed out waiting for peer")

	// ErrNotInitialized is returned by SendRequest before Init has succeeded.
	ErrNotInitialized = errors.New("rpc: client not initialized")

	// ErrTooLarge indicates a request larger than the payload capacity of one
	// frame.
	ErrTooLarge = errors.New("rpc: payload larger than frame capacity")

	// ErrOutstanding is returned while the peer has not yet consumed a request
	// that previously timed out. It wraps ivc.ErrWouldBlock.
	ErrOutstanding = fmt.Errorf("rpc: previous request still outstanding: %w", ivc.ErrWouldBlock)
)

// RemoteError carries a non-zero response code returned by the peer.
type RemoteError struct {
	MRQ  uint32
	Code int32
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: mrq %d failed with code %d", e.MRQ, e.Code)
}
