package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/grafana/sqlbridge/pkg/client"
)

// labelCache remembers the label names of each metric for the lifetime of
// the engine. Entries are never invalidated; concurrent misses for one
// metric share a single backend call.
type labelCache struct {
	catalog client.MetricCatalogClient
	cache   *lru.Cache[string, []string]
	sflight singleflight.Group
}

func newLabelCache(catalog client.MetricCatalogClient, size int) (*labelCache, error) {
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &labelCache{catalog: catalog, cache: cache}, nil
}

func (c *labelCache) Labels(ctx context.Context, metric string) ([]string, error) {
	if l, ok := c.cache.Get(metric); ok {
		return l, nil
	}
	v, err, _ := c.sflight.Do(metric, func() (interface{}, error) {
		l, err := c.catalog.Labels(ctx, metric)
		if err != nil {
			return nil, err
		}
		c.cache.Add(metric, l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
