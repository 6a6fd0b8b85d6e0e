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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"github.com/ivcshm/ivc/internal/transport/ivc"
)

// Memory layout constants
const (
	// Magic bytes for segment identification
	SegmentMagic = "IVCSHM\x00\x00"

	// Current layout version
	SegmentVersion = uint32(1)

	// Segment header size (two cache lines)
	SegmentHeaderSize = 128

	// Default geometry: a single 128-byte frame per direction
	DefaultNumFrames = 1
	DefaultFrameSize = 128

	segmentFilePrefix = "ivc_shm_"
)

// ErrUnsupported is returned by operations that need a Linux host.
var ErrUnsupported = errors.New("shm: not supported on this platform")

// Platform-specific functions (implemented in platform-specific files)
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// Role selects which side of the carveout an endpoint drives.
type Role int

const (
	// RoleClient writes requests into queue A and reads responses from queue B.
	RoleClient Role = iota
	// RolePeer is the coprocessor side.
	RolePeer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RolePeer:
		return "peer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// SegmentHeader is the carveout descriptor at offset 0 of every segment.
// Layout is 128 bytes; offsets are given per field.
type SegmentHeader struct {
	magic         [8]byte  // 0x00: "IVCSHM\0\0"
	version       uint32   // 0x08: layout version
	flags         uint32   // 0x0C: reserved flags
	totalSize     uint64   // 0x10: total segment size
	nframes       uint32   // 0x18: frames per queue
	frameSize     uint32   // 0x1C: bytes per frame
	queueAOff     uint64   // 0x20: client -> peer queue header
	queueBOff     uint64   // 0x28: peer -> client queue header
	clientPID     uint32   // 0x30: client process ID
	peerPID       uint32   // 0x34: peer process ID
	clientEnabled uint32   // 0x38: client accepts doorbells (0->1)
	peerEnabled   uint32   // 0x3C: peer accepts doorbells (0->1)
	clientBell    uint32   // 0x40: rung by the peer, futex word
	peerBell      uint32   // 0x44: rung by the client, futex word
	closed        uint32   // 0x48: closed flag (0 open, 1 closed)
	pad           uint32   // 0x4C: padding
	reserved      [48]byte // 0x50-0x7F: reserved/padding to 128B
}

// Magic returns the magic bytes
func (h *SegmentHeader) Magic() [8]byte {
	return h.magic
}

// SetMagic sets the magic bytes
func (h *SegmentHeader) SetMagic(magic [8]byte) {
	h.magic = magic
}

// Version returns the layout version
func (h *SegmentHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// SetVersion sets the layout version
func (h *SegmentHeader) SetVersion(version uint32) {
	atomic.StoreUint32(&h.version, version)
}

// TotalSize returns the total segment size
func (h *SegmentHeader) TotalSize() uint64 {
	return atomic.LoadUint64(&h.totalSize)
}

// SetTotalSize sets the total segment size
func (h *SegmentHeader) SetTotalSize(size uint64) {
	atomic.StoreUint64(&h.totalSize, size)
}

// Geometry returns the number of frames per queue and the frame size.
func (h *SegmentHeader) Geometry() (nframes, frameSize uint32) {
	return atomic.LoadUint32(&h.nframes), atomic.LoadUint32(&h.frameSize)
}

// SetGeometry records the queue geometry.
func (h *SegmentHeader) SetGeometry(nframes, frameSize uint32) {
	atomic.StoreUint32(&h.nframes, nframes)
	atomic.StoreUint32(&h.frameSize, frameSize)
}

// QueueOffsets returns the offsets of queue A and queue B.
func (h *SegmentHeader) QueueOffsets() (a, b uint64) {
	return atomic.LoadUint64(&h.queueAOff), atomic.LoadUint64(&h.queueBOff)
}

// SetQueueOffsets records the offsets of queue A and queue B.
func (h *SegmentHeader) SetQueueOffsets(a, b uint64) {
	atomic.StoreUint64(&h.queueAOff, a)
	atomic.StoreUint64(&h.queueBOff, b)
}

// PID returns the process ID recorded for role.
func (h *SegmentHeader) PID(r Role) uint32 {
	if r == RoleClient {
		return atomic.LoadUint32(&h.clientPID)
	}
	return atomic.LoadUint32(&h.peerPID)
}

// SetPID records the process ID of role.
func (h *SegmentHeader) SetPID(r Role, pid uint32) {
	if r == RoleClient {
		atomic.StoreUint32(&h.clientPID, pid)
		return
	}
	atomic.StoreUint32(&h.peerPID, pid)
}

// enabledWord returns the doorbell-enable word owned by role.
func (h *SegmentHeader) enabledWord(r Role) *uint32 {
	if r == RoleClient {
		return &h.clientEnabled
	}
	return &h.peerEnabled
}

// bellWord returns the futex word that role sleeps on.
func (h *SegmentHeader) bellWord(r Role) *uint32 {
	if r == RoleClient {
		return &h.clientBell
	}
	return &h.peerBell
}

// Enabled reports whether role has enabled its doorbell.
func (h *SegmentHeader) Enabled(r Role) bool {
	return atomic.LoadUint32(h.enabledWord(r)) != 0
}

// Closed returns the closed flag
func (h *SegmentHeader) Closed() bool {
	return atomic.LoadUint32(&h.closed) != 0
}

// SetClosed sets the closed flag
func (h *SegmentHeader) SetClosed(closed bool) {
	var val uint32
	if closed {
		val = 1
	}
	atomic.StoreUint32(&h.closed, val)
}

// CalculateSegmentLayout calculates the memory layout for a segment carrying
// two queues of nframes frames of frameSize bytes each.
func CalculateSegmentLayout(nframes, frameSize uint32) (totalSize, queueAOffset, queueBOffset uint64, err error) {
	if nframes == 0 {
		return 0, 0, 0, fmt.Errorf("frame count must be positive")
	}
	if frameSize == 0 || frameSize%ivc.Align != 0 {
		return 0, 0, 0, fmt.Errorf("frame size %d is not a positive multiple of %d", frameSize, ivc.Align)
	}
	if uint64(nframes)*uint64(frameSize) >= 1<<32 {
		return 0, 0, 0, fmt.Errorf("%d frames of %d bytes overflow the queue size", nframes, frameSize)
	}

	queueSize := ivc.TotalQueueSize(nframes, frameSize)
	queueAOffset = ivc.AlignSize(SegmentHeaderSize)
	queueBOffset = ivc.AlignSize(queueAOffset + queueSize)
	totalSize = ivc.AlignSize(queueBOffset + queueSize)
	return totalSize, queueAOffset, queueBOffset, nil
}

// ValidateSegmentHeader validates a segment header for consistency against
// the size of the mapping that holds it.
func ValidateSegmentHeader(h *SegmentHeader, mappedSize uint64) error {
	magic := h.Magic()
	if string(magic[:]) != SegmentMagic {
		return fmt.Errorf("invalid magic bytes")
	}
	if h.Version() != SegmentVersion {
		return fmt.Errorf("unsupported version %d, expected %d", h.Version(), SegmentVersion)
	}

	nframes, frameSize := h.Geometry()
	expectedTotal, expectedA, expectedB, err := CalculateSegmentLayout(nframes, frameSize)
	if err != nil {
		return fmt.Errorf("layout calculation failed: %w", err)
	}
	if h.TotalSize() != expectedTotal {
		return fmt.Errorf("total size mismatch: got %d, expected %d", h.TotalSize(), expectedTotal)
	}
	if expectedTotal > mappedSize {
		return fmt.Errorf("segment needs %d bytes, only %d mapped", expectedTotal, mappedSize)
	}
	a, b := h.QueueOffsets()
	if a != expectedA {
		return fmt.Errorf("queue A offset mismatch: got %d, expected %d", a, expectedA)
	}
	if b != expectedB {
		return fmt.Errorf("queue B offset mismatch: got %d, expected %d", b, expectedB)
	}
	return nil
}

// Segment is a carveout holding one IVC channel: a header followed by queue
// A (client -> peer) and queue B (peer -> client).
type Segment struct {
	File *os.File       // backing file, nil for memory segments
	Mem  []byte         // mapped region
	H    *SegmentHeader // typed view of Mem[0:SegmentHeaderSize]
	Path string         // backing file path, empty for memory segments
	Name string         // segment name, empty for memory segments
}

// initSegment writes a fresh segment header into zeroed mem.
func initSegment(mem []byte, nframes, frameSize uint32, totalSize, queueAOffset, queueBOffset uint64) *Segment {
	seg := &Segment{
		Mem: mem,
		H:   (*SegmentHeader)(unsafe.Pointer(&mem[0])),
	}
	var magic [8]byte
	copy(magic[:], SegmentMagic)
	seg.H.SetMagic(magic)
	seg.H.SetVersion(SegmentVersion)
	seg.H.SetTotalSize(totalSize)
	seg.H.SetGeometry(nframes, frameSize)
	seg.H.SetQueueOffsets(queueAOffset, queueBOffset)
	return seg
}

// NewMemorySegment lays out a segment on the Go heap. Both sides must live in
// the current process; it is used for in-process simulation and tests.
func NewMemorySegment(nframes, frameSize uint32) (*Segment, error) {
	totalSize, queueAOffset, queueBOffset, err := CalculateSegmentLayout(nframes, frameSize)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}
	// Backed by uint64 words so every header field is naturally aligned.
	words := make([]uint64, totalSize/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), totalSize)
	return initSegment(mem, nframes, frameSize, totalSize, queueAOffset, queueBOffset), nil
}

// NumFrames returns the number of frames per queue.
func (s *Segment) NumFrames() uint32 {
	n, _ := s.H.Geometry()
	return n
}

// FrameSize returns the size of one frame.
func (s *Segment) FrameSize() uint32 {
	_, f := s.H.Geometry()
	return f
}

// Endpoint returns the incoming and outgoing queue offsets for role.
func (s *Segment) Endpoint(r Role) (rxBase, txBase uintptr) {
	a, b := s.H.QueueOffsets()
	if r == RoleClient {
		return uintptr(b), uintptr(a)
	}
	return uintptr(a), uintptr(b)
}

// Channel opens role's side of the IVC channel in this segment.
func (s *Segment) Channel(r Role, n ivc.Notifier) (*ivc.Channel, error) {
	rx, tx := s.Endpoint(r)
	return ivc.New(s.Mem, rx, tx, s.NumFrames(), s.FrameSize(), n)
}

// Close unmaps the memory and closes the file
func (s *Segment) Close() error {
	var firstErr error

	// Memory segments are released by the garbage collector.
	if s.Mem != nil && s.File != nil {
		if err := unmapMemory(s.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.Mem = nil
	s.H = nil

	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}

	return firstErr
}

// Utility functions

// NewSegmentName returns a fresh, collision-free segment name.
func NewSegmentName() string {
	return "ivc-" + uuid.NewString()
}

// segmentPaths lists the locations a segment file may live in.
func segmentPaths(name string) []string {
	return []string{
		filepath.Join("/dev/shm", segmentFilePrefix+name),
		filepath.Join(os.TempDir(), segmentFilePrefix+name),
	}
}

// RemoveSegment removes a shared memory segment file
func RemoveSegment(name string) error {
	var lastErr error
	for _, path := range segmentPaths(name) {
		if err := os.Remove(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return os.ErrNotExist
}

// SegmentExists checks if a shared memory segment exists
func SegmentExists(name string) bool {
	for _, path := range segmentPaths(name) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
