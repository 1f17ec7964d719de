// Package counter buffers per-event delivery counts in redis and flushes
// them to the database in batches.
package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveriesKey = "webhook:counters:deliveries"

// Sink receives flushed counts.
type Sink interface {
	AddNotificationsSent(ctx context.Context, eventTicker string, n int64, at time.Time) error
}

// Counter records successful sends per event ticker.
type Counter struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func New(rdb *redis.Client) *Counter {
	return &Counter{rdb: rdb, key: deliveriesKey, now: time.Now}
}

// Record adds n pending deliveries for eventTicker.
func (c *Counter) Record(ctx context.Context, eventTicker string, n int64) error {
	if n == 0 {
		return nil
	}
	return c.rdb.HIncrBy(ctx, c.key, eventTicker, n).Err()
}

// Pending returns the not yet flushed count of eventTicker.
func (c *Counter) Pending(ctx context.Context, eventTicker string) (int64, error) {
	v, err := c.rdb.HGet(ctx, c.key, eventTicker).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Flush drains the hash and applies the increments to sink. It uses RENAME
// to a temporary key so increments arriving during the flush are kept for
// the next run. Increments the sink rejects are put back. It returns the
// number of events flushed.
func (c *Counter) Flush(ctx context.Context, sink Sink) (int, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, c.now().UnixNano())
	if err := c.rdb.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	defer c.rdb.Del(context.WithoutCancel(ctx), tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return 0, err
	}

	type pair struct {
		ticker string
		inc    int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		inc, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{ticker: k, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ticker < pairs[j].ticker })

	at := c.now()
	flushed := 0
	var firstErr error
	for _, p := range pairs {
		if err := sink.AddNotificationsSent(ctx, p.ticker, p.inc, at); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if rerr := c.rdb.HIncrBy(context.WithoutCancel(ctx), c.key, p.ticker, p.inc).Err(); rerr != nil {
				return flushed, rerr
			}
			continue
		}
		flushed++
	}
	return flushed, firstErr
}
