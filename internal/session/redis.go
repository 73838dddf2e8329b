// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// DefaultRedisKeyPrefix namespaces session keys.
const DefaultRedisKeyPrefix = "plantlogger:session:"

// RedisStore keeps each session as a JSON value under
// <prefix><token hash>, expiring with the key's TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store on client. An empty prefix selects
// DefaultRedisKeyPrefix.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create implements auth.SessionStore.
func (s *RedisStore) Create(ctx context.Context) (*auth.Session, error) {
	session, err := auth.NewSession(s.now(), s.ttl)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	created, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "setnx").Wrap(err)
	}
	if !created {
		return nil, oops.Code("SESSION_CREATE_FAILED").Errorf("session token collision")
	}
	return session, nil
}

// Get implements auth.SessionStore.
func (s *RedisStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "get").Wrap(err)
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	if session.IsExpiredAt(s.now()) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("reason", "expired").Wrap(auth.ErrNotFound)
	}
	session.ID = id
	return &session, nil
}

// Save implements auth.SessionStore. The key keeps its remaining TTL.
func (s *RedisStore) Save(ctx context.Context, session *auth.Session) error {
	if err := session.Validate(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	err = s.client.SetArgs(ctx, s.key(session.ID), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "set xx").Wrap(err)
	}
	return nil
}

// Destroy implements auth.SessionStore.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("SESSION_BACKEND_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + auth.HashSessionToken(id)
}

var _ auth.SessionStore = (*RedisStore)(nil)
