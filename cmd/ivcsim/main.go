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

// Ivcsim drives both ends of an IVC shared-memory carveout.
//
// The peer role creates the segment and answers MRQ requests like the
// coprocessor firmware would. The client role opens an existing segment and
// issues ping, reset and clock requests. The inspect role prints the queue
// counters of a segment and flags stalled channels.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -url, -cmd, -id, -count).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/ivcshm/ivc/internal/config"
	"github.com/ivcshm/ivc/internal/coproc"
	"github.com/ivcshm/ivc/internal/mrq"
	"github.com/ivcshm/ivc/internal/transport/rpc"
	"github.com/ivcshm/ivc/internal/transport/shm"
	"github.com/ivcshm/ivc/internal/util"
)

var version = "dev"

var errUnknownCommand = errors.New("unknown command")

// Client commands accepted by -cmd.
var commands = []string{"ping", "reset", "assert", "deassert", "max-id", "clk-on", "clk-off", "clk-status"}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()

	role := flag.String("role", "", "Role: peer, client or inspect")
	addr := flag.String("url", "", "Channel address, ivc://name?frames=1&frame=128")
	flag.StringVar(&cfg.Segment, "segment", "", "Segment name (overridden by -url)")
	frames := flag.Uint("frames", uint(cfg.NumFrames), "Frames per queue (peer only)")
	frameSize := flag.Uint("frame", uint(cfg.FrameSize), "Frame size in bytes (peer only)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Poll interval while waiting for a response")
	flag.DurationVar(&cfg.StatsEvery, "stats", cfg.StatsEvery, "Stats report interval, 0 disables")
	cmd := flag.String("cmd", "ping", "Client command: "+strings.Join(commands, ", "))
	id := flag.Uint("id", 0, "Reset or clock ID for client commands")
	count := flag.Int("count", 1, "Number of times the client command is sent")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("ivcsim v%s", version))
	pterm.Println()

	cfg.NumFrames = uint32(*frames)
	cfg.FrameSize = uint32(*frameSize)
	if *addr != "" {
		a, err := config.ParseChannelURL(*addr)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		a.Apply(&cfg)
	}

	if *role == "" {
		runInteractive(ctx, cfg)
		return
	}

	cfg.Role = config.Role(*role)
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case config.RolePeer:
		runPeer(ctx, cfg)
	case config.RoleClient:
		runClient(ctx, cfg, *cmd, uint32(*id), *count)
	case config.RoleInspect:
		runInspect(cfg)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive prompts for the role and its parameters when no -role flag
// is provided.
func runInteractive(ctx context.Context, cfg config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Peer    - Create a segment and answer requests",
			"Client  - Send requests to a running peer",
			"Inspect - Show the queue state of a segment",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Peer"):
		cfg.Role = config.RolePeer
		runPeer(ctx, cfg)
	case strings.HasPrefix(role, "Client"):
		cfg.Role = config.RoleClient
		cfg.Segment = askSegment(cfg.Segment)
		cmd, _ := pterm.DefaultInteractiveSelect.
			WithOptions(commands).
			WithDefaultText("Select a command").
			Show()
		var id uint32
		if cmd != "ping" && cmd != "max-id" {
			id = askID()
		}
		runClient(ctx, cfg, cmd, id, 1)
	default:
		cfg.Role = config.RoleInspect
		cfg.Segment = askSegment(cfg.Segment)
		runInspect(cfg)
	}
}

// runPeer creates the segment and serves requests until interrupted.
func runPeer(ctx context.Context, cfg config.Config) {
	seg, err := shm.CreateSegment(cfg.Segment, cfg.NumFrames, cfg.FrameSize)
	if err != nil {
		util.LogError("failed to create segment: %v", err)
		os.Exit(1)
	}
	defer func() {
		seg.H.SetClosed(true)
		seg.Close()
		if err := shm.RemoveSegment(seg.Name); err != nil {
			util.LogWarning("failed to remove segment %s: %v", seg.Name, err)
		}
	}()

	db := seg.Doorbell(shm.RolePeer)
	rx, tx := seg.Endpoint(shm.RolePeer)
	r, err := coproc.NewResponder(seg.Mem, rx, tx, cfg.NumFrames, cfg.FrameSize, db)
	if err != nil {
		util.LogError("failed to open channel: %v", err)
		os.Exit(1)
	}

	a := config.ChannelAddress{Segment: seg.Name, NumFrames: cfg.NumFrames, FrameSize: cfg.FrameSize}
	util.LogSuccess("serving on %s (%s)", a, seg.Path)

	go func() {
		if err := seg.WaitForPeer(ctx, shm.RolePeer); err == nil {
			util.LogInfo("client enabled its doorbell (pid %d)", seg.H.PID(shm.RoleClient))
		}
	}()

	if cfg.StatsEvery > 0 {
		util.StartStatsReporter(ctx, "peer", r.Stats(), cfg.StatsEvery)
	}

	if err := r.Serve(ctx); err != nil {
		util.LogError("responder stopped: %v", err)
		os.Exit(1)
	}
	util.LogInfo("peer stopped")
}

// runClient opens the segment, brings the channel up and sends cmd count
// times.
func runClient(ctx context.Context, cfg config.Config, cmd string, id uint32, count int) {
	seg, err := shm.OpenSegment(cfg.Segment)
	if err != nil {
		util.LogError("failed to open segment: %v", err)
		os.Exit(1)
	}
	defer seg.Close()

	db := seg.Doorbell(shm.RoleClient)
	defer db.Disable()

	rx, tx := seg.Endpoint(shm.RoleClient)
	client := rpc.NewClient(seg.Mem, rpc.Options{
		RxBase:       rx,
		TxBase:       tx,
		NumFrames:    seg.NumFrames(),
		FrameSize:    seg.FrameSize(),
		Timeout:      cfg.Timeout,
		PollInterval: cfg.PollInterval,
	}, db)

	if err := client.Init(ctx); err != nil {
		util.LogError("failed to bring up channel: %v", err)
		if a, b, serr := seg.QueueStates(); serr == nil {
			_, report := shm.Diagnose(a, b)
			util.LogDebug("%s", report)
		}
		os.Exit(1)
	}
	util.LogSuccess("channel established on %s", seg.Name)

	if cfg.StatsEvery > 0 {
		util.StartStatsReporter(ctx, "client", client.Stats(), cfg.StatsEvery)
	}

	svc := mrq.NewService(client)
	failed := 0
	start := time.Now()
	for i := 0; i < count && ctx.Err() == nil; i++ {
		out, err := runCommand(ctx, svc, cmd, id, uint32(i))
		if err != nil {
			failed++
			var remote *rpc.RemoteError
			if errors.As(err, &remote) {
				util.LogWarning("%s: peer answered %d", cmd, remote.Code)
			} else {
				util.LogError("%s: %v", cmd, err)
			}
			if errors.Is(err, errUnknownCommand) {
				break
			}
			continue
		}
		if count == 1 {
			util.LogSuccess("%s: %s", cmd, out)
		}
	}
	if count > 1 {
		util.LogInfo("%d requests, %d failed, %v", count, failed, time.Since(start).Round(time.Microsecond))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// runCommand sends one client command and formats its result.
func runCommand(ctx context.Context, svc *mrq.Service, cmd string, id, seq uint32) (string, error) {
	switch cmd {
	case "ping":
		reply, err := svc.Ping(ctx, seq+1)
		return fmt.Sprintf("reply %d", reply), err
	case "reset":
		return "module reset", svc.ResetModule(ctx, id)
	case "assert":
		return "reset asserted", svc.AssertReset(ctx, id)
	case "deassert":
		return "reset deasserted", svc.DeassertReset(ctx, id)
	case "max-id":
		n, err := svc.MaxResetID(ctx)
		return fmt.Sprintf("max reset id %d", n), err
	case "clk-on":
		return "clock enabled", svc.EnableClock(ctx, id)
	case "clk-off":
		return "clock disabled", svc.DisableClock(ctx, id)
	case "clk-status":
		on, err := svc.ClockEnabled(ctx, id)
		return fmt.Sprintf("clock %d enabled=%t", id, on), err
	default:
		return "", fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}
}

// runInspect prints both queue headers of a segment and any stall it finds.
func runInspect(cfg config.Config) {
	seg, err := shm.OpenSegment(cfg.Segment)
	if err != nil {
		util.LogError("failed to open segment: %v", err)
		os.Exit(1)
	}
	defer seg.Close()

	a, b, err := seg.QueueStates()
	if err != nil {
		util.LogError("failed to read queues: %v", err)
		os.Exit(1)
	}

	data := pterm.TableData{{"Queue", "State", "Write", "Read", "Pending"}}
	for _, q := range []shm.QueueState{a, b} {
		data = append(data, []string{
			q.Name, q.State.String(),
			strconv.FormatUint(uint64(q.Write), 10),
			strconv.FormatUint(uint64(q.Read), 10),
			fmt.Sprintf("%d/%d", q.Pending(), q.NumFrames),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		util.LogError("failed to render table: %v", err)
	}

	enabled := fmt.Sprintf("peer enabled=%t client enabled=%t closed=%t",
		seg.H.Enabled(shm.RolePeer), seg.H.Enabled(shm.RoleClient), seg.H.Closed())
	util.LogInfo("%s", enabled)

	stalled, report := shm.Diagnose(a, b)
	if stalled {
		util.LogWarning("%s", strings.TrimSpace(report))
		os.Exit(2)
	}
	util.LogSuccess("channel healthy")
}

// ---------------------------------------------------------------------------
// Interactive input helpers
// ---------------------------------------------------------------------------

// askSegment prompts for a segment name until a non-empty one is entered.
func askSegment(current string) string {
	if current != "" {
		return current
	}
	for {
		name, _ := pterm.DefaultInteractiveTextInput.Show("Segment name or ivc:// address")
		name = strings.TrimSpace(name)
		if strings.HasPrefix(name, config.URLScheme+"://") {
			a, err := config.ParseChannelURL(name)
			if err != nil {
				util.LogError("%v", err)
				continue
			}
			name = a.Segment
		}
		if name != "" {
			return name
		}
		pterm.Error.Println("Segment name must not be empty")
	}
}

// askID prompts for a reset or clock ID.
func askID() uint32 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.Show("Reset or clock ID")
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err == nil {
			return uint32(n)
		}
		pterm.Error.Println("Invalid ID, enter a non-negative integer")
	}
}
