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

package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats counts request traffic for one RPC client or responder. The zero
// value is ready to use.
type Stats struct {
	Requests      atomic.Int64 // requests handed to the ring
	Completed     atomic.Int64 // requests answered with code 0
	RemoteErrors  atomic.Int64 // requests answered with a non-zero code
	Timeouts      atomic.Int64 // requests that hit the ack-wait timeout
	Notifications atomic.Int64 // doorbells rung towards the peer
	BytesSent     atomic.Int64 // payload bytes written into frames
	BytesRecv     atomic.Int64 // payload bytes copied out of frames
}

func (s *Stats) AddRequest(n int) {
	s.Requests.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddResponse(n int, code int32) {
	if code == 0 {
		s.Completed.Add(1)
	} else {
		s.RemoteErrors.Add(1)
	}
	s.BytesRecv.Add(int64(n))
}

func (s *Stats) AddTimeout()      { s.Timeouts.Add(1) }
func (s *Stats) AddNotification() { s.Notifications.Add(1) }

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Requests, Completed, RemoteErrors, Timeouts, Notifications int64
	BytesSent, BytesRecv                                        int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Requests:      s.Requests.Load(),
		Completed:     s.Completed.Load(),
		RemoteErrors:  s.RemoteErrors.Load(),
		Timeouts:      s.Timeouts.Load(),
		Notifications: s.Notifications.Load(),
		BytesSent:     s.BytesSent.Load(),
		BytesRecv:     s.BytesRecv.Load(),
	}
}

// StartStatsReporter launches a goroutine that logs the request rate of s
// every interval while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, name string, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				if cur.Requests != prev.Requests || cur.Timeouts != prev.Timeouts {
					pterm.DefaultLogger.Info(formatStats(name, prev, cur, interval))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders the delta between two snapshots as per-second rates.
func formatStats(name string, prev, cur Snapshot, interval time.Duration) string {
	secs := interval.Seconds()
	return fmt.Sprintf("%s: %6.0f req/s | Tx: %s/s | Rx: %s/s | errors %d | timeouts %d",
		name,
		float64(cur.Requests-prev.Requests)/secs,
		formatBytes(float64(cur.BytesSent-prev.BytesSent)/secs),
		formatBytes(float64(cur.BytesRecv-prev.BytesRecv)/secs),
		cur.RemoteErrors,
		cur.Timeouts,
	)
}
