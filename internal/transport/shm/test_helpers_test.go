//go:build linux

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
	"testing"
)

// createTestSegment creates a file-backed segment with a unique name and
// registers cleanup so the file is removed even if the test fails.
func createTestSegment(t *testing.T, nframes, frameSize uint32) *Segment {
	t.Helper()

	name := NewSegmentName()
	seg, err := CreateSegment(name, nframes, frameSize)
	if err != nil {
		t.Fatalf("Failed to create test segment %s: %v", name, err)
	}

	t.Cleanup(func() {
		seg.Close()
		RemoveSegment(name)
	})
	return seg
}

// openTestSegment maps seg a second time, as a client process would.
func openTestSegment(t *testing.T, seg *Segment) *Segment {
	t.Helper()

	client, err := OpenSegment(seg.Name)
	if err != nil {
		t.Fatalf("Failed to open test segment %s: %v", seg.Name, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
