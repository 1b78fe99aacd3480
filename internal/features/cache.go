package features

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"partymix/internal/core"
)

// DefaultCacheSize is the number of tracks whose features are kept in memory.
const DefaultCacheSize = 4096

// Cache memoizes a FeatureProvider. Concurrent lookups for the same track share
// one upstream call, and "no data" answers are cached like hits.
type Cache struct {
	source  core.FeatureProvider
	entries *lru.Cache[string, *core.AudioFeatures]
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCache(source core.FeatureProvider, size int, logger *zap.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[string, *core.AudioFeatures](size)
	return &Cache{source: source, entries: entries, logger: logger}
}

func cacheKey(track core.Track) string {
	if track.ID != "" {
		return track.ID
	}
	return "q:" + track.PrimaryArtist() + "\x00" + track.Title
}

func (c *Cache) Features(ctx context.Context, track core.Track) (*core.AudioFeatures, error) {
	key := cacheKey(track)
	if f, ok := c.entries.Get(key); ok {
		return copyFeatures(f), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if f, ok := c.entries.Get(key); ok {
			return f, nil
		}
		f, err := c.source.Features(ctx, track)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, f)
		return f, nil
	})
	if err != nil {
		c.logger.Debug("Feature lookup failed", zap.String("trackID", track.ID), zap.Error(err))
		return nil, err
	}
	return copyFeatures(v.(*core.AudioFeatures)), nil
}

// Len returns the number of cached tracks.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func copyFeatures(f *core.AudioFeatures) *core.AudioFeatures {
	if f == nil {
		return nil
	}
	out := *f
	return &out
}
