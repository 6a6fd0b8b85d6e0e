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
	"fmt"
	"strings"

	"github.com/ivcshm/ivc/internal/transport/ivc"
)

// QueueState is a snapshot of one queue header read from outside either
// endpoint. Values may be stale by the time they are printed.
type QueueState struct {
	Name      string
	NumFrames uint32
	Write     uint32
	Read      uint32
	State     ivc.State // state published by the queue's writer
}

// Pending returns the number of frames written but not yet read.
func (q QueueState) Pending() uint32 {
	return q.Write - q.Read
}

// Corrupt reports whether the counters are further apart than the ring allows.
func (q QueueState) Corrupt() bool {
	return q.Pending() > q.NumFrames
}

func (q QueueState) String() string {
	return fmt.Sprintf("%s: state=%s pending=%d/%d write=%d read=%d",
		q.Name, q.State, q.Pending(), q.NumFrames, q.Write, q.Read)
}

// QueueStates reads both queue headers. Queue A carries client requests,
// queue B carries peer responses.
func (s *Segment) QueueStates() (a, b QueueState, err error) {
	offA, offB := s.H.QueueOffsets()
	n := s.NumFrames()

	read := func(name string, off uint64) (QueueState, error) {
		h, err := ivc.HeaderAt(s.Mem, uintptr(off))
		if err != nil {
			return QueueState{}, fmt.Errorf("%s header: %w", name, err)
		}
		return QueueState{
			Name:      name,
			NumFrames: n,
			Write:     h.WriteCount(),
			Read:      h.ReadCount(),
			State:     h.State(),
		}, nil
	}

	if a, err = read("client->peer", offA); err != nil {
		return a, b, err
	}
	b, err = read("peer->client", offB)
	return a, b, err
}

// Diagnose checks a pair of queue snapshots for conditions that stop traffic
// and returns whether one was found together with a readable report.
func Diagnose(a, b QueueState) (bool, string) {
	var problems []string

	if a.State != b.State {
		problems = append(problems, fmt.Sprintf("handshake incomplete (%s vs %s)", a.State, b.State))
	} else if a.State != ivc.StateEstablished {
		problems = append(problems, fmt.Sprintf("both sides in %s", a.State))
	}
	for _, q := range []QueueState{a, b} {
		if q.Corrupt() {
			problems = append(problems, fmt.Sprintf("%s counters %d apart, ring holds %d", q.Name, q.Pending(), q.NumFrames))
		}
	}
	if a.Pending() >= a.NumFrames && b.Pending() >= b.NumFrames && !a.Corrupt() && !b.Corrupt() {
		problems = append(problems, "both queues full: neither side is consuming")
	}

	var sb strings.Builder
	if len(problems) > 0 {
		sb.WriteString("CHANNEL STALLED:\n")
	} else {
		sb.WriteString("Channel State:\n")
	}
	sb.WriteString(a.String() + "\n")
	sb.WriteString(b.String() + "\n")
	for _, p := range problems {
		sb.WriteString("- " + p + "\n")
	}
	return len(problems) > 0, sb.String()
}
