// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package ocp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpctl/ocp/internal/ocp"
	"github.com/ocpctl/ocp/internal/substrate"
)

const (
	convergeWait = 2 * time.Second
	convergeTick = 5 * time.Millisecond
)

// buildTestNode constructs a Node over its own memory substrate sharing
// busName with every other node in the scenario, without starting its event
// loop — so callers can still install callback fields (OnPeerSignaled and
// friends are documented as set-before-Run only).
func buildTestNode(t *testing.T, ctx context.Context, busName string) *ocp.Node {
	t.Helper()
	sub, err := substrate.New(ctx, substrate.Config{Backend: substrate.BackendMemory, MemoryBus: busName})
	require.NoError(t, err)
	return ocp.NewNode(sub, nil)
}

// startTestNode runs n's event loop in a background goroutine for the
// lifetime of the test.
func startTestNode(t *testing.T, ctx context.Context, n *ocp.Node) {
	t.Helper()
	t.Cleanup(func() { _ = n.Stop() })

	errCh := make(chan error, 1)
	go func() { errCh <- n.Run(ctx) }()
	t.Cleanup(func() {
		select {
		case <-errCh:
		case <-time.After(time.Second):
		}
	})
}

// newTestNode builds and immediately starts a Node, for scenarios that don't
// need to install callbacks before the loop begins.
func newTestNode(t *testing.T, ctx context.Context, busName string) *ocp.Node {
	t.Helper()
	n := buildTestNode(t, ctx, busName)
	startTestNode(t, ctx, n)
	return n
}

func TestNodePeerEnterRequestsCapabilityTree(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-enter"
	a := newTestNode(t, ctx, bus)

	_, err := a.RegisterInt("count", 7, ocp.AccessRead, nil, nil, nil)
	require.NoError(t, err)

	b := newTestNode(t, ctx, bus)

	require.Eventually(t, func() bool {
		caps, ok := b.Subscriptions().PeerCapsIfKnown(a.Self())
		if !ok {
			return false
		}
		v, err := caps.Get([]string{"count"})
		return err == nil && v.Equal(ocp.NewInt(7))
	}, convergeWait, convergeTick, "b should learn a's capability tree on ENTER")
}

func TestNodeSetMergesIntoPeerTreeAndRebroadcastsToThirdParty(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-set"
	a := newTestNode(t, ctx, bus)
	b := newTestNode(t, ctx, bus)
	c := newTestNode(t, ctx, bus)

	require.Eventually(t, func() bool {
		_, aKnowsB := a.Subscriptions().PeerCapsIfKnown(b.Self())
		_, aKnowsC := a.Subscriptions().PeerCapsIfKnown(c.Self())
		return aKnowsB && aKnowsC
	}, convergeWait, convergeTick, "a should learn both peers on ENTER")

	// c monitors b, so b rebroadcasts the merged SET to c as a MOD.
	require.NoError(t, c.SignalSubscribe(c.Self(), ocp.NoSignalID, b.Self(), ocp.NoSignalID))
	require.Eventually(t, func() bool {
		monitors := b.Subscriptions().Monitors()
		return len(monitors) == 1 && monitors[0] == c.Self()
	}, convergeWait, convergeTick, "b.monitor_out should contain c")

	require.NoError(t, a.PeerSet(b.Self(), map[string]ocp.Value{"pushed": ocp.NewBool(true)}))

	require.Eventually(t, func() bool {
		v, err := b.Tree().Get([]string{"pushed"})
		return err == nil && v.Equal(ocp.NewBool(true))
	}, convergeWait, convergeTick, "b's own tree should merge the pushed SET")

	require.Eventually(t, func() bool {
		caps, ok := c.Subscriptions().PeerCapsIfKnown(b.Self())
		if !ok {
			return false
		}
		v, err := caps.Get([]string{"pushed"})
		return err == nil && v.Equal(ocp.NewBool(true))
	}, convergeWait, convergeTick, "c's mirror of b should receive the rebroadcast SET")
}

func TestNodeSignalSubscribeAndFanout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-sig"
	emitter := buildTestNode(t, ctx, bus)
	param, err := emitter.RegisterFloat("temp", 10, ocp.AccessRead|ocp.AccessEmit, nil, nil, nil)
	require.NoError(t, err)

	receiver := buildTestNode(t, ctx, bus)
	signaled := make(chan ocp.SigPayload, 1)
	receiver.OnPeerSignaled = func(_ ocp.PeerID, sig ocp.SigPayload) {
		select {
		case signaled <- sig:
		default:
		}
	}

	startTestNode(t, ctx, emitter)
	startTestNode(t, ctx, receiver)

	require.Eventually(t, func() bool {
		_, ok := receiver.Subscriptions().PeerCapsIfKnown(emitter.Self())
		return ok
	}, convergeWait, convergeTick, "receiver should learn the emitter on ENTER")

	require.NoError(t, receiver.SignalSubscribe(receiver.Self(), ocp.NoSignalID, emitter.Self(), param.SigID()))

	require.Eventually(t, func() bool {
		return len(param.Subscribers()) == 1
	}, convergeWait, convergeTick, "emitter should record the new subscriber")

	param.Set(ocp.NewFloat(42))

	select {
	case sig := <-signaled:
		assert.True(t, sig.Value.Equal(ocp.NewFloat(42)))
	case <-time.After(convergeWait):
		t.Fatal("receiver did not observe the signal before the deadline")
	}
}

func TestNodeUnsubscribeClearsInbound(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-unsub"
	emitter := newTestNode(t, ctx, bus)
	param, err := emitter.RegisterFloat("temp", 10, ocp.AccessRead|ocp.AccessEmit, nil, nil, nil)
	require.NoError(t, err)

	receiver := newTestNode(t, ctx, bus)

	require.Eventually(t, func() bool {
		_, ok := receiver.Subscriptions().PeerCapsIfKnown(emitter.Self())
		return ok
	}, convergeWait, convergeTick, "receiver should learn the emitter on ENTER")

	require.NoError(t, receiver.SignalSubscribe(receiver.Self(), ocp.NoSignalID, emitter.Self(), param.SigID()))
	require.Eventually(t, func() bool {
		return len(param.Subscribers()) == 1
	}, convergeWait, convergeTick, "emitter should record the new subscriber")
	require.True(t, receiver.Subscriptions().HasInboundFrom(emitter.Self()))

	require.NoError(t, receiver.SignalUnsubscribe(receiver.Self(), ocp.NoSignalID, emitter.Self(), param.SigID()))

	require.Eventually(t, func() bool {
		return len(param.Subscribers()) == 0
	}, convergeWait, convergeTick, "emitter should drop the subscriber after unsubscribe")
	require.Eventually(t, func() bool {
		return !receiver.Subscriptions().HasInboundFrom(emitter.Self())
	}, convergeWait, convergeTick, "receiver's inbound table should no longer carry the emitter")
}

func TestNodeMonitorWildcardSeesSubscriberListChanges(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-monitor"
	n1 := newTestNode(t, ctx, bus)
	param, err := n1.RegisterFloat("temp", 10, ocp.AccessRead|ocp.AccessEmit, nil, nil, nil)
	require.NoError(t, err)

	n2 := newTestNode(t, ctx, bus)
	monitor := newTestNode(t, ctx, bus)

	require.Eventually(t, func() bool {
		_, knowsN1 := monitor.Subscriptions().PeerCapsIfKnown(n1.Self())
		_, knowsN2 := monitor.Subscriptions().PeerCapsIfKnown(n2.Self())
		return knowsN1 && knowsN2
	}, convergeWait, convergeTick, "monitor should learn both peers on ENTER")

	require.NoError(t, monitor.SignalSubscribe(monitor.Self(), ocp.NoSignalID, n1.Self(), ocp.NoSignalID))
	require.NoError(t, monitor.SignalSubscribe(monitor.Self(), ocp.NoSignalID, n2.Self(), ocp.NoSignalID))

	require.Eventually(t, func() bool {
		monitors := n1.Subscriptions().Monitors()
		return len(monitors) == 1 && monitors[0] == monitor.Self()
	}, convergeWait, convergeTick, "n1.monitor_out should contain the monitor")
	require.Eventually(t, func() bool {
		monitors := n2.Subscriptions().Monitors()
		return len(monitors) == 1 && monitors[0] == monitor.Self()
	}, convergeWait, convergeTick, "n2.monitor_out should contain the monitor")

	require.NoError(t, n2.SignalSubscribe(n2.Self(), ocp.SignalID(0), n1.Self(), param.SigID()))

	wantSubscribed := ocp.NewList([]ocp.Value{
		ocp.NewList([]ocp.Value{ocp.NewString(n2.Self().String()), ocp.NewInt(0)}),
	})
	require.Eventually(t, func() bool {
		caps, ok := monitor.Subscriptions().PeerCapsIfKnown(n1.Self())
		if !ok {
			return false
		}
		v, err := caps.Get([]string{"temp", "subscribers"})
		return err == nil && v.Equal(wantSubscribed)
	}, convergeWait, convergeTick, "monitor's mirror of n1 should reflect the new subscriber")

	require.NoError(t, n2.SignalUnsubscribe(n2.Self(), ocp.SignalID(0), n1.Self(), param.SigID()))

	wantEmpty := ocp.NewList(nil)
	require.Eventually(t, func() bool {
		caps, ok := monitor.Subscriptions().PeerCapsIfKnown(n1.Self())
		if !ok {
			return false
		}
		v, err := caps.Get([]string{"temp", "subscribers"})
		return err == nil && v.Equal(wantEmpty)
	}, convergeWait, convergeTick, "monitor's mirror should reflect the subscriber's removal")
}

func TestNodePeerExitGarbageCollectsSubscriptions(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := "bus-exit"
	emitter := newTestNode(t, ctx, bus)
	param, err := emitter.RegisterBool("flag", false, ocp.AccessRead|ocp.AccessEmit)
	require.NoError(t, err)

	receiver := newTestNode(t, ctx, bus)

	require.Eventually(t, func() bool {
		_, ok := receiver.Subscriptions().PeerCapsIfKnown(emitter.Self())
		return ok
	}, convergeWait, convergeTick, "receiver should learn the emitter on ENTER")

	require.NoError(t, receiver.SignalSubscribe(receiver.Self(), ocp.NoSignalID, emitter.Self(), param.SigID()))
	require.Eventually(t, func() bool {
		return len(param.Subscribers()) == 1
	}, convergeWait, convergeTick, "emitter should record the new subscriber")

	require.NoError(t, receiver.Stop())

	require.Eventually(t, func() bool {
		return len(param.Subscribers()) == 0
	}, convergeWait, convergeTick, "emitter should drop the subscriber once the receiver exits")
}
