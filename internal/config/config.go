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

// Package config holds the ivcsim configuration and the ivc:// channel
// address format.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ivcshm/ivc/internal/transport/ivc"
	"github.com/ivcshm/ivc/internal/transport/rpc"
	"github.com/ivcshm/ivc/internal/transport/shm"
)

// Role represents which side of the carveout the tool drives.
type Role string

const (
	RolePeer    Role = "peer"
	RoleClient  Role = "client"
	RoleInspect Role = "inspect"
)

// URLScheme is the scheme of channel addresses.
const URLScheme = "ivc"

// Config stores all parameters of one ivcsim run.
type Config struct {
	Role         Role
	Segment      string        // carveout name under /dev/shm
	NumFrames    uint32        // frames per queue
	FrameSize    uint32        // bytes per frame
	Timeout      time.Duration // peer liveness and per-request wait
	PollInterval time.Duration // delay between polls
	StatsEvery   time.Duration // stats report interval, 0 disables
	Debug        bool
}

// Default returns the reference deployment: one 128-byte frame per
// direction, a one second timeout polled every microsecond.
func Default() Config {
	return Config{
		NumFrames:    shm.DefaultNumFrames,
		FrameSize:    shm.DefaultFrameSize,
		Timeout:      rpc.DefaultTimeout,
		PollInterval: rpc.DefaultPollInterval,
		StatsEvery:   5 * time.Second,
	}
}

// Validate checks c for values the transport would reject later.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case RolePeer, RoleClient, RoleInspect:
	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be peer, client or inspect", c.Role))
	}
	if c.Segment == "" && c.Role != RolePeer {
		errs = append(errs, errors.New("missing segment name"))
	}
	if strings.ContainsRune(c.Segment, '/') {
		errs = append(errs, fmt.Errorf("segment name %q must not contain '/'", c.Segment))
	}
	if _, _, _, err := shm.CalculateSegmentLayout(c.NumFrames, c.FrameSize); err != nil {
		errs = append(errs, fmt.Errorf("invalid geometry: %w", err))
	}
	if c.FrameSize > 0 && rpc.PayloadCapacity(c.FrameSize) == 0 {
		errs = append(errs, fmt.Errorf("frame size %d leaves no room for a payload", c.FrameSize))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.PollInterval <= 0 || c.PollInterval > c.Timeout {
		errs = append(errs, fmt.Errorf("poll interval %v must be positive and at most the timeout", c.PollInterval))
	}
	return errors.Join(errs...)
}

// ChannelAddress is a parsed ivc:// address.
type ChannelAddress struct {
	Segment   string
	NumFrames uint32
	FrameSize uint32
}

// String formats a as an ivc:// URL.
func (a ChannelAddress) String() string {
	return fmt.Sprintf("%s://%s?frames=%d&frame=%d", URLScheme, a.Segment, a.NumFrames, a.FrameSize)
}

// Apply copies the address into c.
func (a ChannelAddress) Apply(c *Config) {
	c.Segment = a.Segment
	c.NumFrames = a.NumFrames
	c.FrameSize = a.FrameSize
}

// ParseChannelURL parses addresses of the form ivc://name?frames=1&frame=128.
// Missing geometry parameters take the defaults.
func ParseChannelURL(raw string) (ChannelAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ChannelAddress{}, fmt.Errorf("parse ivc address: %w", err)
	}
	if u.Scheme != URLScheme {
		return ChannelAddress{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	name := u.Host
	if name == "" {
		// Allow ivc:///name via path
		name = strings.TrimPrefix(u.Path, "/")
	}
	if name == "" {
		return ChannelAddress{}, fmt.Errorf("missing segment name")
	}

	addr := ChannelAddress{
		Segment:   name,
		NumFrames: shm.DefaultNumFrames,
		FrameSize: shm.DefaultFrameSize,
	}
	q := u.Query()
	if v := q.Get("frames"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return ChannelAddress{}, fmt.Errorf("invalid frames %q", v)
		}
		addr.NumFrames = uint32(n)
	}
	if v := q.Get("frame"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return ChannelAddress{}, fmt.Errorf("invalid frame %q: %w", v, err)
		}
		if n%ivc.Align != 0 {
			return ChannelAddress{}, fmt.Errorf("frame must be a multiple of %d: %d", ivc.Align, n)
		}
		addr.FrameSize = uint32(n)
	}
	return addr, nil
}
