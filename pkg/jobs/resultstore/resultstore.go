// Package resultstore reads Spark job results from the search index the
// jobs write them to.
package resultstore

import (
	"context"
	"flag"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/jobs"
)

// Config configures the results index connection.
type Config struct {
	client.Config `yaml:",inline"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Config.RegisterFlagsWithPrefix(prefix+"results.", f)
}

// Store implements jobs.ResultStore with a term query on one keyword field
// of the results index.
type Store struct {
	client *elastic.Client
	index  string
	field  string
}

// New returns a Store searching index on field.
func New(cfg Config, index, field string) (*Store, error) {
	httpClient, err := client.NewHTTPClient(cfg.Config, "results")
	if err != nil {
		return nil, err
	}
	c, err := elastic.NewClient(
		elastic.SetURL(cfg.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
		elastic.SetHttpClient(httpClient),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating results index client")
	}
	return NewWithClient(c, index, field), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(c *elastic.Client, index, field string) *Store {
	return &Store{client: c, index: index, field: field}
}

// Fetch returns {"data": <document>} for the first document whose field
// equals key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	res, err := s.client.Search(s.index).
		Query(elastic.NewTermQuery(s.field, key)).
		Size(1).
		Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return nil, jobs.ErrResultNotFound
		}
		return nil, errors.Wrapf(err, "searching %s for %s", s.index, key)
	}
	if res.Hits == nil || len(res.Hits.Hits) == 0 || len(res.Hits.Hits[0].Source) == 0 {
		return nil, jobs.ErrResultNotFound
	}

	source := res.Hits.Hits[0].Source
	out := make([]byte, 0, len(source)+10)
	out = append(out, `{"data":`...)
	out = append(out, source...)
	out = append(out, '}')
	return out, nil
}
