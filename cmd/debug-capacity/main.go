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

// Debug-capacity lays out an in-memory carveout with the given geometry and
// reports how much of it a single channel direction can carry.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ivcshm/ivc/internal/transport/ivc"
	"github.com/ivcshm/ivc/internal/transport/rpc"
	"github.com/ivcshm/ivc/internal/transport/shm"
	"github.com/ivcshm/ivc/internal/util"
)

func main() {
	nframes := flag.Uint("frames", shm.DefaultNumFrames, "Frames per queue")
	frameSize := flag.Uint("frame", shm.DefaultFrameSize, "Frame size in bytes")
	flag.Parse()

	seg, err := shm.NewMemorySegment(uint32(*nframes), uint32(*frameSize))
	if err != nil {
		util.LogError("failed to lay out segment: %v", err)
		os.Exit(1)
	}

	var rings atomic.Int64
	notify := ivc.NotifierFunc(func() { rings.Add(1) })
	tx, err := seg.Channel(shm.RoleClient, notify)
	if err != nil {
		util.LogError("failed to open client side: %v", err)
		os.Exit(1)
	}
	rx, err := seg.Channel(shm.RolePeer, notify)
	if err != nil {
		util.LogError("failed to open peer side: %v", err)
		os.Exit(1)
	}

	a, b := seg.H.QueueOffsets()
	fmt.Printf("=== Segment Layout ===\n")
	fmt.Printf("Total memory size: %d bytes\n", len(seg.Mem))
	fmt.Printf("Queue A (client->peer) at %#x, %d bytes\n", a, ivc.TotalQueueSize(seg.NumFrames(), seg.FrameSize()))
	fmt.Printf("Queue B (peer->client) at %#x, %d bytes\n", b, ivc.TotalQueueSize(seg.NumFrames(), seg.FrameSize()))
	fmt.Printf("Frames per queue: %d x %d bytes\n", seg.NumFrames(), seg.FrameSize())
	fmt.Printf("RPC payload per frame: %d bytes\n", rpc.PayloadCapacity(seg.FrameSize()))

	fmt.Printf("\n=== Single Write Tests ===\n")
	buf := make([]byte, seg.FrameSize()+1)
	for _, size := range []int{1, 8, 64, int(seg.FrameSize()) - 1, int(seg.FrameSize()), int(seg.FrameSize()) + 1} {
		if size <= 0 {
			continue
		}
		data := buf[:size]
		for i := range data {
			data[i] = byte(i % 256)
		}
		if _, err := tx.Write(data); err != nil {
			fmt.Printf("Size %d bytes: FAIL (%v)\n", size, err)
			continue
		}
		got := make([]byte, size)
		if _, err := rx.Read(got); err != nil {
			fmt.Printf("Size %d bytes: written but read failed (%v)\n", size, err)
			continue
		}
		fmt.Printf("Size %d bytes: OK\n", size)
	}

	fmt.Printf("\n=== Backpressure Test ===\n")
	written := 0
	for {
		_, err := tx.Write(buf[:seg.FrameSize()])
		if errors.Is(err, ivc.ErrWouldBlock) {
			fmt.Printf("Queue full after %d frames (%d bytes)\n", written, written*int(seg.FrameSize()))
			break
		}
		if err != nil {
			fmt.Printf("Write failed after %d frames: %v\n", written, err)
			break
		}
		written++
	}
	fmt.Printf("Channel state: %+v\n", tx.DebugState())
	fmt.Printf("Doorbell rings so far: %d\n", rings.Load())
}
