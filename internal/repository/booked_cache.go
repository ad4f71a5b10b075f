package repository

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BookedSource yields the slot ids booked on a date.
type BookedSource interface {
	BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error)
}

// BookedCache is a read-through Redis cache in front of a BookedSource.
// A nil client makes it a passthrough.
//
// Every date has a generation token under "<prefix>:booked:<date>:gen"
// and the set is stored under "<prefix>:booked:<date>:<gen>".  Invalidate
// replaces the token, so a reader that loaded the set before a commit
// writes it under the old generation where nobody looks for it.
type BookedCache struct {
	source BookedSource
	rdb    *redis.Client
	ttl    time.Duration
	genTTL time.Duration
	prefix string
}

func NewBookedCache(source BookedSource, rdb *redis.Client, ttl time.Duration, prefix string) *BookedCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "cache"
	}
	genTTL := 24 * time.Hour
	if genTTL < 10*ttl {
		genTTL = 10 * ttl
	}
	return &BookedCache{source: source, rdb: rdb, ttl: ttl, genTTL: genTTL, prefix: prefix}
}

func (c *BookedCache) genKey(date string) string { return c.prefix + ":booked:" + date + ":gen" }

func (c *BookedCache) setKey(date, gen string) string { return c.prefix + ":booked:" + date + ":" + gen }

// generation returns the current token for date; "0" until the first
// invalidation.
func (c *BookedCache) generation(ctx context.Context, date string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.genKey(date)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

// BookedSlotIDs serves the set from Redis when present and otherwise loads
// it from the source and stores it under the generation read before the
// load.  Redis errors fall through to the source.
func (c *BookedCache) BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error) {
	if c.rdb == nil {
		return c.source.BookedSlotIDs(ctx, date)
	}
	gen, err := c.generation(ctx, date)
	if err != nil {
		log.Printf("booked-cache: generation %s: %v", date, err)
		return c.source.BookedSlotIDs(ctx, date)
	}
	key := c.setKey(date, gen)

	if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var ids []string
		if json.Unmarshal(bs, &ids) == nil {
			booked := make(map[string]bool, len(ids))
			for _, id := range ids {
				booked[id] = true
			}
			return booked, nil
		}
	} else if err != redis.Nil {
		log.Printf("booked-cache: get %s: %v", date, err)
	}

	booked, err := c.source.BookedSlotIDs(ctx, date)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(booked))
	for id := range booked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if bs, err := json.Marshal(ids); err == nil {
		if err := c.rdb.SetEx(ctx, key, bs, c.ttl).Err(); err != nil {
			log.Printf("booked-cache: set %s: %v", date, err)
		}
	}
	return booked, nil
}

// Invalidate starts a new generation for date and drops the current set.
// It is registered as an on-commit hook of the booking service so it
// completes before the booking is reported.
func (c *BookedCache) Invalidate(ctx context.Context, date string) error {
	if c.rdb == nil {
		return nil
	}
	old, err := c.generation(ctx, date)
	if err != nil {
		old = ""
	}
	if err := c.rdb.SetEx(ctx, c.genKey(date), uuid.NewString(), c.genTTL).Err(); err != nil {
		return err
	}
	if old != "" {
		return c.rdb.Del(ctx, c.setKey(date, old)).Err()
	}
	return nil
}
