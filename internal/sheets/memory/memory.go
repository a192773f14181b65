// Package memory is an in-process RowWriter for tests and local runs
// without a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"

	"kharcha/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
	err  error
}

var _ sheets.RowWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, row sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailWith makes every following Append return err; nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
