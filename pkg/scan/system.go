package scan

import (
	"context"
	"fmt"

	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/response"
)

// SystemRequest produces the rows of a metadata table.
type SystemRequest interface {
	Search(ctx context.Context) ([]querymodel.Row, error)
	fmt.Stringer
}

// SystemScan reads a metadata table.
type SystemScan struct {
	cursor

	Request SystemRequest
}

// NewSystemScan returns a scan of req.
func NewSystemScan(req SystemRequest) *SystemScan {
	return &SystemScan{Request: req}
}

func (s *SystemScan) Open(ctx context.Context) error {
	return s.open(ctx, func(ctx context.Context) (response.RowIterator, error) {
		rows, err := s.Request.Search(ctx)
		if err != nil {
			return nil, err
		}
		return response.NewSliceIterator(rows), nil
	})
}

func (s *SystemScan) Explain() string {
	return fmt.Sprintf("SystemScan(request=%s)", s.Request)
}
