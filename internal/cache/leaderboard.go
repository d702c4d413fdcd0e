// Package cache keeps the leaderboard in Redis so the bot command and the
// public endpoint do not sort the account table on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chartscan:leaderboard:"

type Source interface {
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
}

// Leaderboard is a read-through cache. Redis failures are logged and the
// source is queried directly.
type Leaderboard struct {
	rdb    *redis.Client
	source Source
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisClient(conf config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewLeaderboard(rdb *redis.Client, source Source, ttl time.Duration, log *slog.Logger) *Leaderboard {
	return &Leaderboard{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    log.With(sl.Module("cache.leaderboard")),
	}
}

func key(limit int) string {
	return fmt.Sprintf("%s%d", keyPrefix, limit)
}

func (c *Leaderboard) Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	data, err := c.rdb.Get(ctx, key(limit)).Bytes()
	if err == nil {
		var entries []*entity.LeaderboardEntry
		if err = json.Unmarshal(data, &entries); err == nil {
			return entries, nil
		}
		c.log.With(sl.Err(err)).Warn("decode cached leaderboard")
	} else if !errors.Is(err, redis.Nil) {
		c.log.With(sl.Err(err)).Warn("read cached leaderboard")
	}

	entries, err := c.source.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	if data, err = json.Marshal(entries); err == nil {
		if err = c.rdb.Set(ctx, key(limit), data, c.ttl).Err(); err != nil {
			c.log.With(sl.Err(err)).Debug("store cached leaderboard")
		}
	}
	return entries, nil
}

// Invalidate drops every cached page.
func (c *Leaderboard) Invalidate(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.With(sl.Err(err)).Debug("scan cached leaderboard")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.With(sl.Err(err)).Debug("invalidate cached leaderboard")
	}
}

func (c *Leaderboard) Close() {
	_ = c.rdb.Close()
}
