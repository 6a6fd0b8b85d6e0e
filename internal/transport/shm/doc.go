/*
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
 */

// Package shm realises an IVC carveout on a host: a segment header followed
// by two IVC queues, either memory-mapped from a file under /dev/shm so that
// two processes can share it, or allocated on the heap for in-process use.
//
// The segment header also carries the doorbell pair. Each side owns an
// enable word and a bell word; ringing the other side increments its bell
// and wakes it with a futex on Linux. On other platforms only memory
// segments are available and waiters poll the bell word.
package shm
