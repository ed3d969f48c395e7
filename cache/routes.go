// Package cache keeps read-mostly records in Redis in front of the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/tours"
)

const routePrefix = "route:"

// RouteCache is a read-through cache of routes. Redis failures are logged
// and fall through to the source; they never fail a read.
type RouteCache struct {
	rdb    redis.Cmdable
	source tours.RouteReader
	ttl    time.Duration
	log    *zap.Logger
}

var _ tours.RouteCache = (*RouteCache)(nil)

func NewRouteCache(rdb redis.Cmdable, source tours.RouteReader, ttl time.Duration, log *zap.Logger) *RouteCache {
	return &RouteCache{rdb: rdb, source: source, ttl: ttl, log: log}
}

type cachedSegment struct {
	Index    int             `json:"index"`
	Station  string          `json:"station"`
	Distance decimal.Decimal `json:"distance"`
}

type cachedRoute struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Segments []cachedSegment `json:"segments"`
}

func (c *RouteCache) GetRoute(ctx context.Context, id string) (tours.Route, error) {
	raw, err := c.rdb.Get(ctx, routePrefix+id).Bytes()
	switch {
	case err == nil:
		var cr cachedRoute
		if err := json.Unmarshal(raw, &cr); err == nil {
			return cr.route(), nil
		}
		c.log.Warn("discarding unreadable cached route", zap.String("route_id", id))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("route cache read failed", zap.String("route_id", id), zap.Error(err))
	}

	r, err := c.source.GetRoute(ctx, id)
	if err != nil {
		return tours.Route{}, err
	}
	c.store(ctx, r)
	return r, nil
}

func (c *RouteCache) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, routePrefix+id).Err(); err != nil {
		return fmt.Errorf("cache: invalidate route %s: %w", id, err)
	}
	return nil
}

func (c *RouteCache) store(ctx context.Context, r tours.Route) {
	cr := cachedRoute{ID: r.ID, Name: r.Name, Segments: make([]cachedSegment, len(r.Segments))}
	for i, s := range r.Segments {
		cr.Segments[i] = cachedSegment{Index: s.Index, Station: s.Station, Distance: s.Distance}
	}
	b, err := json.Marshal(cr)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, routePrefix+r.ID, b, c.ttl).Err(); err != nil {
		c.log.Warn("route cache write failed", zap.String("route_id", r.ID), zap.Error(err))
	}
}

func (cr cachedRoute) route() tours.Route {
	r := tours.Route{ID: cr.ID, Name: cr.Name, Segments: make([]tours.Segment, len(cr.Segments))}
	for i, s := range cr.Segments {
		r.Segments[i] = tours.Segment{Index: s.Index, Station: s.Station, Distance: s.Distance}
	}
	return r
}
