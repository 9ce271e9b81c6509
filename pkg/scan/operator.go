// Package scan holds the physical operators that read rows from the
// backends. Each operator performs its single network round trip in Open
// and then serves rows from memory.
package scan

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/response"
)

// Operator is a physical table scan.
type Operator interface {
	// Open performs the backend call. It may be called once.
	Open(ctx context.Context) error
	HasNext() bool
	// Next returns the next row, or ErrIteratorExhausted once every row
	// was read.
	Next() (querymodel.Row, error)
	Close() error
	// Explain describes the request the operator runs.
	Explain() string
}

const (
	stateCreated int32 = iota
	stateOpened
	stateExhausted
	stateClosed
)

// cursor implements the operator state machine over a row iterator.
type cursor struct {
	state atomic.Int32
	it    response.RowIterator

	buffered bool
	row      querymodel.Row
}

func (c *cursor) open(ctx context.Context, fetch func(context.Context) (response.RowIterator, error)) error {
	if !c.state.CompareAndSwap(stateCreated, stateOpened) {
		return errors.Wrap(querymodel.ErrIllegalState, "operator opened twice")
	}
	it, err := fetch(ctx)
	if err != nil {
		c.state.Store(stateExhausted)
		return err
	}
	c.it = it
	return nil
}

func (c *cursor) HasNext() bool {
	if c.state.Load() != stateOpened || c.it == nil {
		return false
	}
	if c.buffered {
		return true
	}
	if !c.it.Next() {
		c.state.Store(stateExhausted)
		return false
	}
	c.row, c.buffered = c.it.At(), true
	return true
}

func (c *cursor) Next() (querymodel.Row, error) {
	switch c.state.Load() {
	case stateCreated:
		return querymodel.Row{}, errors.Wrap(querymodel.ErrIllegalState, "operator not opened")
	case stateClosed:
		return querymodel.Row{}, errors.Wrap(querymodel.ErrIllegalState, "operator closed")
	}
	if !c.HasNext() {
		if c.it != nil {
			if err := c.it.Err(); err != nil {
				return querymodel.Row{}, err
			}
		}
		return querymodel.Row{}, querymodel.ErrIteratorExhausted
	}
	c.buffered = false
	return c.row, nil
}

func (c *cursor) Close() error {
	c.state.Store(stateClosed)
	c.it = nil
	c.buffered = false
	return nil
}
