// Package sqltest provides pgx row doubles and a scripted executor for
// repository and handler tests.
package sqltest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"adminpanel/internal/infra"
)

// SimpleRow adapts a scan function to pgx.Row.
type SimpleRow struct {
	scan func(dest ...any) error
}

func NewSimpleRow(scanner func(dest ...any) error) SimpleRow {
	return SimpleRow{scan: scanner}
}

func (r SimpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// ValuesRow returns a row that assigns values to the scan destinations in order.
func ValuesRow(values ...any) SimpleRow {
	return NewSimpleRow(func(dest ...any) error { return Assign(dest, values) })
}

// ErrRow returns a row whose Scan fails with err.
func ErrRow(err error) SimpleRow {
	return NewSimpleRow(func(dest ...any) error { return err })
}

// Assign copies values into pointer destinations, requiring matching types.
func Assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("sqltest: scan %d destinations from %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("sqltest: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(elem.Type()) {
			return fmt.Errorf("sqltest: cannot scan %T into %s", values[i], elem.Type())
		}
		elem.Set(v)
	}
	return nil
}

// Rows is an in-memory pgx.Rows.
type Rows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func NewRows(data ...[]any) *Rows {
	return &Rows{data: data, idx: -1}
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return fmt.Errorf("sqltest: scan called without current row")
	}
	if err := Assign(dest, r.data[r.idx]); err != nil {
		r.err = err
		return err
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, fmt.Errorf("sqltest: no current row")
	}
	return r.data[r.idx], nil
}

// Call records one statement sent to the Executor.
type Call struct {
	Kind  string
	Query string
	Args  []any
	InTx  bool
}

// Executor is a scripted infra.SQLTransactor. Handlers are keyed by a
// substring that must identify one query; Marker gives the safest key.
type Executor struct {
	mu       sync.Mutex
	calls    []Call
	inTx     bool
	OnExec   map[string]func(args []any) (pgconn.CommandTag, error)
	OnRow    map[string]func(args []any) pgx.Row
	OnQuery  map[string]func(args []any) (pgx.Rows, error)
	TxErr    error
	Rollback int
}

func NewExecutor() *Executor {
	return &Executor{
		OnExec:  map[string]func(args []any) (pgconn.CommandTag, error){},
		OnRow:   map[string]func(args []any) pgx.Row{},
		OnQuery: map[string]func(args []any) (pgx.Rows, error){},
	}
}

func (e *Executor) record(kind, query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Kind: kind, Query: query, Args: args, InTx: e.inTx})
}

// Calls returns a copy of the recorded statements.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Executor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record("exec", query, args)
	for key, fn := range e.OnExec {
		if strings.Contains(query, key) {
			return fn(args)
		}
	}
	return pgconn.CommandTag{}, fmt.Errorf("sqltest: unexpected exec: %s", firstLine(query))
}

func (e *Executor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	e.record("query_row", query, args)
	for key, fn := range e.OnRow {
		if strings.Contains(query, key) {
			return fn(args)
		}
	}
	return ErrRow(fmt.Errorf("sqltest: unexpected query_row: %s", firstLine(query)))
}

func (e *Executor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record("query", query, args)
	for key, fn := range e.OnQuery {
		if strings.Contains(query, key) {
			return fn(args)
		}
	}
	return nil, fmt.Errorf("sqltest: unexpected query: %s", firstLine(query))
}

// InTx runs fn against the same executor and counts a rollback when fn fails.
func (e *Executor) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	if e.TxErr != nil {
		return e.TxErr
	}
	e.mu.Lock()
	e.inTx = true
	e.mu.Unlock()
	err := fn(e)
	e.mu.Lock()
	e.inTx = false
	if err != nil {
		e.Rollback++
	}
	e.mu.Unlock()
	return err
}

// Marker returns the --sql marker line of an inline query.
func Marker(query string) string {
	return firstLine(query)
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if idx := strings.Index(q, "\n"); idx >= 0 {
		return q[:idx]
	}
	return q
}

var _ infra.SQLTransactor = (*Executor)(nil)
