// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements the session and token stores on Redis.
//
// Records are JSON strings. Secondary lookups (expiry order, sessions per
// user, token per identifier) live in separate keys that may briefly point at
// records already deleted; readers skip and prune such entries.
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultPrefix namespaces every key written by the stores.
const DefaultPrefix = "holoauth:"

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	if url == "" {
		return nil, oops.Code("REDIS_URL_MISSING").Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

type keys struct {
	prefix string
}

func (k keys) session(id string) string { return k.prefix + "session:" + id }
func (k keys) sessionExpiry() string { return k.prefix + "sessions:expiry" }
func (k keys) userSessions(userID string) string { return k.prefix + "sessions:user:" + userID }
func (k keys) token(value string) string { return k.prefix + "token:" + value }
func (k keys) tokenIndex(kind, identifier string) string {
	return k.prefix + "tokens:" + kind + ":" + identifier
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return keys{prefix: prefix}
}
