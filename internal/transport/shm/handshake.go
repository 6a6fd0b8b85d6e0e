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
	"context"
	"time"
)

// WaitForPeer waits for the other side to enable its doorbell. r is the
// caller's role: the peer calls it after creating the segment to wait for a
// client, and the client calls it to confirm the peer is serving.
func (s *Segment) WaitForPeer(ctx context.Context, r Role) error {
	db := s.Doorbell(r)

	ticker := time.NewTicker(1 * time.Millisecond)
	defer ticker.Stop()

	for {
		if db.PeerEnabled() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
