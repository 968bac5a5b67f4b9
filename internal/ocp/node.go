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

// Package ocp implements the Orchestrator Control Protocol core: the
// parameter registry and addressing model, the subscription and
// signal-propagation state machine, and the control-message protocol that
// ties both to a substrate.Substrate collaborator.
package ocp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ocpctl/ocp/internal/substrate"
)

// WellKnownGroup is the group every Node joins on startup (§4.4).
const WellKnownGroup = "ZOCP"

// ProtocolHeader is the header advertised via Substrate.SetHeader on
// startup, announcing protocol-version support (§4.4).
const ProtocolHeader = "X-ZOCP"

// ProtocolVersion is the value of ProtocolHeader this implementation speaks.
const ProtocolVersion = "1"

// ErrNameCollision is returned by RegisterX when name already names a
// parameter or object in the current container (pyZOCP's _validate_name,
// carried forward per SPEC_FULL §F since spec.md is silent on the rule).
var ErrNameCollision = errors.New("ocp: name already registered in this container")

// Hooks lets external packages (metrics, tracing glue) observe Node
// activity without internal/ocp importing them back. All fields are
// optional; nil hooks are no-ops.
type Hooks struct {
	OnFrameDispatched func(kind FrameKind)
	OnSignalFanout     func(count int)
}

// Node composes the parameter registry, capability tree, subscription
// tables, and dispatcher, and owns the single poll loop over the substrate's
// inbox (§4.4, §5).
type Node struct {
	sub substrate.Substrate

	registry   *ParameterRegistry
	tree       *CapabilityTree
	subs       *SubscriptionTables
	dispatcher *Dispatcher

	mu      sync.Mutex
	curPath []string

	hooks Hooks

	stopOnce sync.Once
	stopCh   chan struct{}

	// Per-event user callbacks (pyZOCP's on_peer_enter etc., §F). Nil is a
	// no-op. Set these before calling Run.
	OnPeerEnter        func(peer PeerID, name string)
	OnPeerExit         func(peer PeerID, name string)
	OnPeerJoin         func(peer PeerID, group string)
	OnPeerLeave        func(peer PeerID, group string)
	OnPeerWhisper      func(peer PeerID, frame Frame)
	OnPeerShout        func(peer PeerID, group string, frame Frame)
	OnModified         func(delta map[string]Value)
	OnPeerModified     func(peer PeerID, delta map[string]Value)
	OnPeerReplied      func(peer PeerID, payload json.RawMessage)
	OnPeerSubscribed   func(sub SubPayload)
	OnPeerUnsubscribed func(sub SubPayload)
	OnPeerSignaled     func(peer PeerID, sig SigPayload)

	// Groups lists additional groups to join on startup, beyond
	// WellKnownGroup (set by cmd from the configured node group, §6's Join).
	Groups []string
}

// NewNode constructs a Node over the given substrate. initial, if non-nil,
// seeds the capability tree before any parameters are registered.
func NewNode(sub substrate.Substrate, initial map[string]Value) *Node {
	n := &Node{
		sub:        sub,
		registry:   NewParameterRegistry(),
		tree:       NewCapabilityTree(),
		subs:       NewSubscriptionTables(),
		dispatcher: NewDispatcher(),
		stopCh:     make(chan struct{}),
	}
	if initial != nil {
		n.tree.Replace(initial)
	}
	n.wireDefaultHandlers()
	return n
}

// SetHooks installs observability hooks (ocpmetrics wiring, typically).
func (n *Node) SetHooks(h Hooks) { n.hooks = h }

// Dispatcher exposes the Node's Dispatcher for additional handler
// registration (§6's handle_<KEY> extension point).
func (n *Node) Dispatcher() *Dispatcher { return n.dispatcher }

// Self returns this node's own peer id, as assigned by the substrate.
func (n *Node) Self() PeerID { return PeerID(n.sub.UUID()) }

// Registry exposes the parameter registry for inspection (tests, httpapi).
func (n *Node) Registry() *ParameterRegistry { return n.registry }

// Tree exposes the local capability tree for inspection.
func (n *Node) Tree() *CapabilityTree { return n.tree }

// Subscriptions exposes the subscription tables for inspection.
func (n *Node) Subscriptions() *SubscriptionTables { return n.subs }

// Run starts the substrate, joins the well-known group, and polls the
// inbox until ctx is canceled or Stop is called (§4.4, §5).
func (n *Node) Run(ctx context.Context) error {
	if err := n.start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return n.Stop()
		case <-n.stopCh:
			return nil
		case ev, ok := <-n.sub.Inbox():
			if !ok {
				return nil
			}
			n.handleEvent(ctx, ev)
		}
	}
}

// RunOnce processes at most one inbox event (waiting up to timeout if
// timeout > 0) and returns; it does not start the substrate. Used by
// tests to drive deterministic convergence steps (§8's "after one iteration"
// language).
func (n *Node) RunOnce(ctx context.Context, timeout time.Duration) error {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		return nil
	case ev, ok := <-n.sub.Inbox():
		if !ok {
			return nil
		}
		n.handleEvent(ctx, ev)
		return nil
	}
}

// Drain processes every event currently queued in the inbox without
// blocking, for tests that want to fully converge a scenario in one call.
func (n *Node) Drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-n.sub.Inbox():
			if !ok {
				return
			}
			n.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (n *Node) start(ctx context.Context) error {
	if err := n.sub.Start(ctx); err != nil {
		return fmt.Errorf("ocp: starting substrate: %w", err)
	}
	n.sub.SetHeader(ProtocolHeader, ProtocolVersion)
	if err := n.sub.Join(WellKnownGroup); err != nil {
		return fmt.Errorf("ocp: joining %s: %w", WellKnownGroup, err)
	}
	for _, g := range n.Groups {
		if err := n.sub.Join(g); err != nil {
			return fmt.Errorf("ocp: joining %s: %w", g, err)
		}
	}
	return nil
}

// Stop requests loop exit; the current iteration runs to completion (§5).
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopCh)
		err = n.sub.Stop()
	})
	return err
}

func (n *Node) handleEvent(ctx context.Context, ev substrate.Event) {
	peer := PeerID(ev.Peer)
	switch ev.Type {
	case substrate.EventEnter:
		n.handlePeerEnter(ctx, peer, ev.PeerName)
	case substrate.EventExit:
		n.handlePeerExit(peer, ev.PeerName)
	case substrate.EventJoin:
		if n.OnPeerJoin != nil {
			n.OnPeerJoin(peer, ev.Group)
		}
	case substrate.EventLeave:
		if n.OnPeerLeave != nil {
			n.OnPeerLeave(peer, ev.Group)
		}
	case substrate.EventWhisper:
		n.handleFrame(ctx, peer, ev.Payload, func(frame Frame) {
			if n.OnPeerWhisper != nil {
				n.OnPeerWhisper(peer, frame)
			}
		})
	case substrate.EventShout:
		n.handleFrame(ctx, peer, ev.Payload, func(frame Frame) {
			if n.OnPeerShout != nil {
				n.OnPeerShout(peer, ev.Group, frame)
			}
		})
	}
}

// handlePeerEnter allocates an empty peer mirror, requests the peer's full
// capability tree, and fires on_peer_enter (§4.4).
func (n *Node) handlePeerEnter(ctx context.Context, peer PeerID, name string) {
	_ = name
	n.subs.PeerCaps(peer)
	if err := n.PeerGet(peer, nil); err != nil {
		slog.Warn("ocp: failed to request peer capability tree", "peer", peer, "error", err)
	}
	if n.OnPeerEnter != nil {
		n.OnPeerEnter(peer, name)
	}
}

// handlePeerExit is the authoritative GC path for a departed peer (§4.4,
// §4.5): it drops the peer mirror, removes it from monitor_out and
// inbound, and strips it from every local emitter's subscriber list.
func (n *Node) handlePeerExit(peer PeerID, name string) {
	n.subs.DropPeer(peer)
	for _, p := range n.registry.All() {
		p.RemoveSubscribersForPeer(peer)
	}
	if n.OnPeerExit != nil {
		n.OnPeerExit(peer, name)
	}
}

func (n *Node) handleFrame(ctx context.Context, sender PeerID, payload []byte, onDecoded func(Frame)) {
	frame, err := DecodeFrame(payload)
	if err != nil {
		slog.Debug("ocp: dropping malformed frame", "sender", sender, "error", err)
		return
	}
	onDecoded(frame)

	_, span := otel.Tracer("ocp").Start(ctx, "Node.Dispatch")
	defer span.End()

	if n.hooks.OnFrameDispatched != nil {
		n.hooks.OnFrameDispatched(frame.Kind)
	}
	if err := n.dispatcher.Dispatch(sender, payload); err != nil {
		slog.Debug("ocp: dispatch error", "sender", sender, "kind", frame.Kind, "error", err)
	}
}

// whisper is a small convenience wrapper shared by the peer-facing helpers.
func (n *Node) whisper(peer PeerID, payload []byte) error {
	return n.sub.Whisper(substrate.PeerID(peer), payload)
}
