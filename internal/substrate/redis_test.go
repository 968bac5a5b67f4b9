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

package substrate_test

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpctl/ocp/internal/substrate"
)

// redisTestAddr lets a developer point these tests at a real redis instance;
// it otherwise falls back to the conventional local default.
func redisTestAddr() string {
	if addr := os.Getenv("OCP_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// skipUnlessRedisReachable dials the test address with a short timeout and
// skips the test if nothing answers, rather than failing a suite that
// doesn't have a redis instance available.
func skipUnlessRedisReachable(t *testing.T) (host string, port int) {
	t.Helper()
	addr := redisTestAddr()
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	_ = conn.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := net.LookupPort("tcp", portStr)
	require.NoError(t, err)
	return host, p
}

func mustStartRedis(t *testing.T, name string) substrate.Substrate {
	t.Helper()
	host, port := skipUnlessRedisReachable(t)

	sub, err := substrate.New(context.Background(), substrate.Config{
		Backend: substrate.BackendRedis,
		Redis: substrate.RedisOptions{
			Host:             host,
			Port:             port,
			PresenceInterval: 50 * time.Millisecond,
			PresenceTTL:      200 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	sub.SetName(name)
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(func() { _ = sub.Stop() })
	return sub
}

func TestRedisSubstrateEnterAndExit(t *testing.T) {
	a := mustStartRedis(t, "a")
	b := mustStartRedis(t, "b")

	select {
	case ev := <-a.Inbox():
		assert.Equal(t, substrate.EventEnter, ev.Type)
		assert.Equal(t, b.UUID(), ev.Peer)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ENTER")
	}

	require.NoError(t, b.Stop())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-a.Inbox():
			if ev.Type == substrate.EventExit && ev.Peer == b.UUID() {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for EXIT")
		}
	}
}

func TestRedisSubstrateWhisperIsPointToPoint(t *testing.T) {
	a := mustStartRedis(t, "a")
	b := mustStartRedis(t, "b")

	drainEnter(t, a.Inbox())

	require.NoError(t, a.Whisper(b.UUID(), []byte("hi")))

	select {
	case ev := <-b.Inbox():
		assert.Equal(t, substrate.EventWhisper, ev.Type)
		assert.Equal(t, a.UUID(), ev.Peer)
		assert.Equal(t, []byte("hi"), ev.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for whisper")
	}
}

func TestRedisSubstrateShoutReachesGroupMembers(t *testing.T) {
	a := mustStartRedis(t, "a")
	b := mustStartRedis(t, "b")

	drainEnter(t, a.Inbox())

	require.NoError(t, a.Join("room"))
	require.NoError(t, b.Join("room"))

	require.Eventually(t, func() bool {
		return contains(b.PeerGroups(a.UUID()), "room")
	}, 5*time.Second, 25*time.Millisecond, "b should observe a's group membership")

	require.NoError(t, a.Shout("room", []byte("go")))

	select {
	case ev := <-b.Inbox():
		assert.Equal(t, substrate.EventShout, ev.Type)
		assert.Equal(t, "room", ev.Group)
		assert.Equal(t, []byte("go"), ev.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shout")
	}
}

func TestRedisSubstrateHeadersAreReadableByPeers(t *testing.T) {
	a := mustStartRedis(t, "a")
	b := mustStartRedis(t, "b")

	drainEnter(t, a.Inbox())

	a.SetHeader("X-OCP", "1")
	require.Eventually(t, func() bool {
		v, ok := b.PeerHeaderValue(a.UUID(), "X-OCP")
		return ok && v == "1"
	}, 5*time.Second, 25*time.Millisecond, "b should observe a's header")
}

func drainEnter(t *testing.T, ch <-chan substrate.Event) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ENTER")
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
