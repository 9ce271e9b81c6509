package main

import (
	"errors"
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"

	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/scan"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

// print writes every row of op. columns is only called for an empty
// result, to still print a header.
func (p *printer) print(op scan.Operator, columns func() ([]string, error)) error {
	var rows []querymodel.Row
	for op.HasNext() {
		r, err := op.Next()
		if err != nil {
			return err
		}
		if p.format == outputJSON {
			if err := p.printJSON(r); err != nil {
				return err
			}
			continue
		}
		rows = append(rows, r)
	}
	// Surface iteration errors hidden behind HasNext.
	if _, err := op.Next(); err != nil && !errors.Is(err, querymodel.ErrIteratorExhausted) {
		return err
	}
	if p.format == outputJSON {
		return nil
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0].Columns()
	} else {
		var err error
		if header, err = columns(); err != nil {
			return err
		}
	}

	w := tablewriter.NewWriter(p.w)
	w.SetHeader(header)
	w.SetAutoFormatHeaders(false)
	w.SetAutoWrapText(false)
	for _, r := range rows {
		line := make([]string, 0, len(header))
		for _, c := range header {
			v, _ := r.Get(c)
			line = append(line, v.String())
		}
		w.Append(line)
	}
	w.Render()
	return nil
}

func (p *printer) printJSON(r querymodel.Row) error {
	obj := make(map[string]interface{}, r.Len())
	values := r.Values()
	for i, c := range r.Columns() {
		obj[c] = values[i].Interface()
	}
	buf, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = p.w.Write(append(buf, '\n'))
	return err
}

func sortedColumns(types map[string]querymodel.ValueType) []string {
	out := make([]string, 0, len(types))
	for c := range types {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
