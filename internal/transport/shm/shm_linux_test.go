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
	"os"
	"strings"
	"testing"
	"time"
)

func TestCreateOpenSegment(t *testing.T) {
	seg := createTestSegment(t, 2, 128)

	if !SegmentExists(seg.Name) {
		t.Fatalf("SegmentExists(%q) = false after CreateSegment", seg.Name)
	}
	seg.Doorbell(RolePeer).Enable()
	if got := seg.H.PID(RolePeer); got != uint32(os.Getpid()) {
		t.Fatalf("peer PID = %d, want %d", got, os.Getpid())
	}

	client := openTestSegment(t, seg)
	if client.NumFrames() != 2 || client.FrameSize() != 128 {
		t.Fatalf("opened geometry = %d x %d, want 2 x 128", client.NumFrames(), client.FrameSize())
	}
	if got := seg.H.PID(RoleClient); got != 0 {
		t.Fatalf("client PID = %d before the client enabled its doorbell", got)
	}
	client.Doorbell(RoleClient).Enable()
	if got := seg.H.PID(RoleClient); got != uint32(os.Getpid()) {
		t.Fatalf("client PID not visible through the peer mapping: %d", got)
	}

	// Traffic written through one mapping is read through the other.
	tx, err := client.Channel(RoleClient, client.Doorbell(RoleClient))
	if err != nil {
		t.Fatalf("client Channel failed: %v", err)
	}
	rx, err := seg.Channel(RolePeer, seg.Doorbell(RolePeer))
	if err != nil {
		t.Fatalf("peer Channel failed: %v", err)
	}

	seq := seg.Doorbell(RolePeer).Sequence()
	if _, err := tx.Write([]byte("mapped twice")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if rung, err := seg.Doorbell(RolePeer).Wait(seq, time.Second); err != nil || !rung {
		t.Fatalf("peer bell not rung by first write: %v, %v", rung, err)
	}
	buf := make([]byte, 12)
	if _, err := rx.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "mapped twice" {
		t.Fatalf("Read = %q", buf)
	}
}

func TestCreateSegmentGeneratesName(t *testing.T) {
	seg, err := CreateSegment("", 1, 64)
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	t.Cleanup(func() {
		seg.Close()
		RemoveSegment(seg.Name)
	})
	if !strings.HasPrefix(seg.Name, "ivc-") {
		t.Fatalf("generated name %q lacks ivc- prefix", seg.Name)
	}
}

func TestCreateSegmentExclusive(t *testing.T) {
	seg := createTestSegment(t, 1, 64)
	if _, err := CreateSegment(seg.Name, 1, 64); err == nil {
		t.Fatal("second CreateSegment with the same name succeeded")
	}
}

func TestOpenSegmentErrors(t *testing.T) {
	if _, err := OpenSegment(NewSegmentName()); err == nil {
		t.Fatal("OpenSegment of a missing segment succeeded")
	}

	// A file that is not a segment is rejected.
	name := NewSegmentName()
	path := generateSegmentPath(name)
	if err := os.WriteFile(path, make([]byte, 4096), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })
	if _, err := OpenSegment(name); err == nil {
		t.Fatal("OpenSegment accepted a zeroed file")
	}
}

func TestRemoveSegment(t *testing.T) {
	seg, err := CreateSegment("", 1, 64)
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	seg.Close()

	if err := RemoveSegment(seg.Name); err != nil {
		t.Fatalf("RemoveSegment failed: %v", err)
	}
	if SegmentExists(seg.Name) {
		t.Fatal("segment still exists after RemoveSegment")
	}
	if err := RemoveSegment(seg.Name); !os.IsNotExist(err) {
		t.Fatalf("second RemoveSegment = %v, want not-exist", err)
	}
}
