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

package substrate

import (
	"context"
	"crypto/rand"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix  = "ocp:presence:"
	headersKeyPrefix   = "ocp:headers:"
	whisperChanPrefix  = "ocp:whisper:"
	groupChanPrefix    = "ocp:group:"
	groupMembersPrefix = "ocp:group-members:"

	presenceTTL      = 15 * time.Second
	presenceInterval = 5 * time.Second
	connsPerCPU      = 10
	maxIdleTime      = 5 * time.Minute
)

// RedisOptions configures the redis Substrate backend.
type RedisOptions struct {
	Host         string
	Port         int
	Password     string
	TraceEnabled bool

	// PresenceInterval is how often presence keys are refreshed and swept.
	// Zero defaults to presenceInterval.
	PresenceInterval time.Duration
	// PresenceTTL is how long a presence key survives without a refresh
	// before a peer is considered gone. Zero defaults to presenceTTL.
	PresenceTTL time.Duration
}

// redisSubstrate is a cross-host Substrate built on go-redis: presence is a
// TTL'd key per peer refreshed by a gocron job (ENTER when a key appears,
// EXIT when it expires and a sweep notices), groups are Pub/Sub channels,
// and whisper is a per-peer Pub/Sub channel keyed by peer id. Grounded on
// the teacher's internal/pubsub/redis.go (client construction, redisotel
// instrumentation) and internal/kv's TTL'd presence-key pattern from
// hub.go's claimPeerOwnership/isLocalPeerOwner.
type redisSubstrate struct {
	client    *redis.Client
	scheduler gocron.Scheduler

	id   PeerID
	name string

	mu        sync.RWMutex
	headers   map[string]string
	ownGroups map[string]struct{}

	knownPeers *xsync.Map[PeerID, string]

	inbox  chan Event
	cancel context.CancelFunc

	groupSubsMu sync.Mutex
	groupSubs   map[string]*redis.PubSub

	presenceInterval time.Duration
	presenceTTL      time.Duration
}

// NewRedis constructs a Substrate backed by Redis presence keys and Pub/Sub.
func NewRedis(ctx context.Context, opts RedisOptions) (Substrate, error) {
	id, err := randomPeerID()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:        opts.Password,
		PoolFIFO:        true,
		PoolSize:        runtime.GOMAXPROCS(0) * connsPerCPU,
		MinIdleConns:    runtime.GOMAXPROCS(0),
		ConnMaxIdleTime: maxIdleTime,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("substrate: connecting to redis: %w", err)
	}

	if opts.TraceEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return nil, fmt.Errorf("substrate: instrumenting redis tracing: %w", err)
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			return nil, fmt.Errorf("substrate: instrumenting redis metrics: %w", err)
		}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("substrate: creating scheduler: %w", err)
	}

	interval := opts.PresenceInterval
	if interval <= 0 {
		interval = presenceInterval
	}
	ttl := opts.PresenceTTL
	if ttl <= 0 {
		ttl = presenceTTL
	}

	return &redisSubstrate{
		client:           client,
		scheduler:        scheduler,
		id:               id,
		headers:          make(map[string]string),
		ownGroups:        make(map[string]struct{}),
		knownPeers:       xsync.NewMap[PeerID, string](),
		inbox:            make(chan Event, memoryInboxSize),
		groupSubs:        make(map[string]*redis.PubSub),
		presenceInterval: interval,
		presenceTTL:      ttl,
	}, nil
}

func (r *redisSubstrate) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.refreshPresence(runCtx); err != nil {
		cancel()
		return err
	}
	if err := r.sweepPresence(runCtx); err != nil {
		cancel()
		return err
	}

	go r.listenWhisper(runCtx)

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.presenceInterval),
		gocron.NewTask(func() {
			if err := r.refreshPresence(runCtx); err != nil {
				return
			}
			_ = r.sweepPresence(runCtx)
		}),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("substrate: scheduling presence job: %w", err)
	}
	r.scheduler.Start()
	return nil
}

func (r *redisSubstrate) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("substrate: stopping scheduler: %w", err)
	}

	ctx := context.Background()
	r.client.Del(ctx, presenceKey(r.id))

	r.groupSubsMu.Lock()
	for _, sub := range r.groupSubs {
		_ = sub.Close()
	}
	r.groupSubsMu.Unlock()

	close(r.inbox)
	return r.client.Close()
}

func (r *redisSubstrate) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

func (r *redisSubstrate) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *redisSubstrate) UUID() PeerID { return r.id }

func (r *redisSubstrate) SetHeader(key, value string) {
	r.mu.Lock()
	r.headers[key] = value
	r.mu.Unlock()
	ctx := context.Background()
	r.client.HSet(ctx, headersKeyPrefix+r.id.String(), key, value)
}

func (r *redisSubstrate) PeerHeaderValue(peer PeerID, key string) (string, bool) {
	ctx := context.Background()
	v, err := r.client.HGet(ctx, headersKeyPrefix+peer.String(), key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *redisSubstrate) Join(group string) error {
	r.mu.Lock()
	r.ownGroups[group] = struct{}{}
	r.mu.Unlock()

	ctx := context.Background()
	if err := r.client.SAdd(ctx, groupMembersPrefix+group, r.id.String()).Err(); err != nil {
		return fmt.Errorf("substrate: joining group %s: %w", group, err)
	}

	r.groupSubsMu.Lock()
	_, already := r.groupSubs[group]
	if !already {
		sub := r.client.Subscribe(ctx, groupChanPrefix+group)
		r.groupSubs[group] = sub
		go r.listenGroup(group, sub)
	}
	r.groupSubsMu.Unlock()

	r.pushInbox(Event{Type: EventJoin, Peer: r.id, PeerName: r.Name(), Group: group})
	return nil
}

func (r *redisSubstrate) OwnGroups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ownGroups))
	for g := range r.ownGroups {
		out = append(out, g)
	}
	return out
}

func (r *redisSubstrate) PeerGroups(peer PeerID) []string {
	ctx := context.Background()
	var out []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, groupMembersPrefix+"*", 0).Result()
		if err != nil {
			return out
		}
		for _, key := range keys {
			isMember, err := r.client.SIsMember(ctx, key, peer.String()).Result()
			if err == nil && isMember {
				out = append(out, strings.TrimPrefix(key, groupMembersPrefix))
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out
}

func (r *redisSubstrate) Whisper(peer PeerID, payload []byte) error {
	ctx := context.Background()
	if err := r.client.Publish(ctx, whisperChanPrefix+peer.String(), r.envelope(payload)).Err(); err != nil {
		return fmt.Errorf("substrate: whispering to %s: %w", peer, err)
	}
	return nil
}

func (r *redisSubstrate) Shout(group string, payload []byte) error {
	ctx := context.Background()
	if err := r.client.Publish(ctx, groupChanPrefix+group, r.envelope(payload)).Err(); err != nil {
		return fmt.Errorf("substrate: shouting to %s: %w", group, err)
	}
	return nil
}

// envelope prefixes a pub/sub payload with the sender's peer id, since a
// redis channel carries no notion of who published to it. unenvelope
// reverses this on receipt.
func (r *redisSubstrate) envelope(payload []byte) []byte {
	out := make([]byte, len(r.id)+len(payload))
	copy(out, r.id[:])
	copy(out[len(r.id):], payload)
	return out
}

func unenvelope(raw []byte) (sender PeerID, payload []byte, ok bool) {
	if len(raw) < len(sender) {
		return PeerID{}, nil, false
	}
	copy(sender[:], raw[:len(sender)])
	return sender, raw[len(sender):], true
}

func (r *redisSubstrate) Inbox() <-chan Event { return r.inbox }

func presenceKey(id PeerID) string { return presenceKeyPrefix + id.String() }

// refreshPresence writes/renews this node's own presence key.
func (r *redisSubstrate) refreshPresence(ctx context.Context) error {
	if err := r.client.Set(ctx, presenceKey(r.id), r.Name(), r.presenceTTL).Err(); err != nil {
		return fmt.Errorf("substrate: refreshing presence: %w", err)
	}
	return nil
}

// sweepPresence scans presence keys, synthesizing ENTER for newly-seen peers
// and EXIT for peers whose key has expired since the last sweep (§6, the
// gocron-driven analogue of the memory backend's direct ENTER/EXIT handoff).
func (r *redisSubstrate) sweepPresence(ctx context.Context) error {
	seen := make(map[PeerID]struct{})

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, presenceKeyPrefix+"*", 0).Result()
		if err != nil {
			return fmt.Errorf("substrate: scanning presence: %w", err)
		}
		for _, key := range keys {
			hex := strings.TrimPrefix(key, presenceKeyPrefix)
			peer, err := ParsePeerID(hex)
			if err != nil || peer == r.id {
				continue
			}
			name, err := r.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			seen[peer] = struct{}{}
			if _, known := r.knownPeers.Load(peer); !known {
				r.knownPeers.Store(peer, name)
				r.pushInbox(Event{Type: EventEnter, Peer: peer, PeerName: name})
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	r.knownPeers.Range(func(peer PeerID, name string) bool {
		if _, ok := seen[peer]; !ok {
			r.knownPeers.Delete(peer)
			r.pushInbox(Event{Type: EventExit, Peer: peer, PeerName: name})
		}
		return true
	})
	return nil
}

func (r *redisSubstrate) listenWhisper(ctx context.Context) {
	sub := r.client.Subscribe(ctx, whisperChanPrefix+r.id.String())
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sender, payload, ok := unenvelope([]byte(msg.Payload))
			if !ok {
				continue
			}
			name, _ := r.knownPeers.Load(sender)
			r.pushInbox(Event{Type: EventWhisper, Peer: sender, PeerName: name, Payload: payload})
		}
	}
}

func (r *redisSubstrate) listenGroup(group string, sub *redis.PubSub) {
	ch := sub.Channel()
	for msg := range ch {
		sender, payload, ok := unenvelope([]byte(msg.Payload))
		if !ok {
			continue
		}
		name, _ := r.knownPeers.Load(sender)
		r.pushInbox(Event{Type: EventShout, Peer: sender, PeerName: name, Group: group, Payload: payload})
	}
}

func (r *redisSubstrate) pushInbox(ev Event) {
	select {
	case r.inbox <- ev:
	default:
	}
}
