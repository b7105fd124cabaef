package core

import (
	"context"
	"strings"
)

// Table is a header plus string rows, the unit exchanged by input and output adapters.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named header column (case-insensitive), or -1.
func (t Table) Column(name string) int {
	name = strings.TrimSpace(name)
	for i, col := range t.Header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

// InputAdapter loads the input table for pipeline processing.
type InputAdapter interface {
	Load(ctx context.Context) (Table, error)
}

// OutputAdapter persists the table produced by pipeline processing.
type OutputAdapter interface {
	Store(ctx context.Context, t Table) error
}

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
