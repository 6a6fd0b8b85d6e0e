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

// Package ivc implements the inter-VM communication (IVC) frame ring used to
// talk to an asynchronously clocked management coprocessor over shared memory.
//
// A channel is a pair of queues, one per direction. Each queue starts with a
// ChannelHeader whose two halves are written by exactly one side: the
// transmitter owns the write counter and the connection state, the receiver
// owns the read counter. No locks are involved. Frame contents are published
// by the atomic store of the write counter and released by the atomic store
// of the read counter, and the peer is signalled only on empty to non-empty
// and full to non-full transitions through an injected Notifier.
//
// Before any frame moves, both sides drive a three-state handshake
// (SYNC, ACK, ESTABLISHED) through Reset and Notified. Counter values read
// from the peer are never trusted: an impossible backlog is treated as an
// empty queue by readers and a full queue by writers.
package ivc
