// Package importdb builds the tabular row sets for the resource and search index tables and bulk loads them into
// postgres.
package importdb

import (
	"github.com/pkg/errors"
)

// Table is a set of rows destined for a single table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

func NewTable(name string, columns []string, capacity int) *Table {
	return &Table{
		Name:    name,
		Columns: columns,
		Rows:    make([][]interface{}, 0, capacity),
	}
}

// AddRow appends a row, which must have a value for every column.
func (t *Table) AddRow(values ...interface{}) error {
	if len(values) != len(t.Columns) {
		return errors.Errorf("table %s has %d columns but row has %d values", t.Name, len(t.Columns), len(values))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

func (t *Table) Len() int {
	return len(t.Rows)
}
