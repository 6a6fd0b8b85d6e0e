//go:build !linux

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

func init() {
	unmapMemory = func([]byte) error { return ErrUnsupported }
}

// CreateSegment is only available on Linux; use NewMemorySegment elsewhere.
func CreateSegment(name string, nframes, frameSize uint32) (*Segment, error) {
	return nil, ErrUnsupported
}

// OpenSegment is only available on Linux.
func OpenSegment(name string) (*Segment, error) {
	return nil, ErrUnsupported
}
