// Package datastore wraps the SQLite databases plugins cache remote data in.
package datastore

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite" // registers the sqlite driver
)

const driverName = "sqlite"

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownQuery      = errors.New("unknown query")
	ErrUnknownIndex      = errors.New("unknown index")
	ErrUnknownStore      = errors.New("unknown datastore")
	ErrNoRows            = errors.New("no rows to insert")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column describes one column of a table, for instance {"mnemonic", "TEXT", "PRIMARY KEY"}.
type Column struct {
	Name     string
	Type     string
	Modifier string
}

type index struct {
	table   string
	columns []string
	unique  bool
}

// Store is one SQLite database with named queries and indices. Every table it holds can be
// stamped in the age table to know when it was last refreshed.
type Store struct {
	name string
	db   *sql.DB

	mu      sync.Mutex
	queries map[string]string
	indices map[string]index
	tx      *sql.Tx
}

// Open opens or creates the database at path.
func Open(ctx context.Context, name, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open datastore %s", name)
	}
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS age (name TEXT PRIMARY KEY, modified DATETIME)")
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "unable to create age table of %s", name), db.Close())
	}

	return &Store{
		name:    name,
		db:      db,
		queries: make(map[string]string),
		indices: make(map[string]index),
	}, nil
}

// Name returns the name the store was opened with.
func (s *Store) Name() string { return s.name }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (s *Store) conn() execer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return s.tx
	}

	return s.db
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifier.MatchString(name) {
			return errors.Wrapf(ErrInvalidIdentifier, "%q", name)
		}
	}

	return nil
}

// CreateTable creates table if it does not exist yet.
func (s *Store) CreateTable(ctx context.Context, table string, columns []Column) error {
	err := checkIdentifiers(table)
	if err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		err := checkIdentifiers(col.Name)
		if err != nil {
			return err
		}
		defs[i] = strings.TrimSpace(strings.Join([]string{col.Name, col.Type, col.Modifier}, " "))
	}

	_, err = s.conn().ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+table+" ("+strings.Join(defs, ", ")+")")

	return errors.Wrapf(err, "unable to create table %s.%s", s.name, table)
}

// DefineIndex records an index CreateIndex and DropIndex refer to by name.
func (s *Store) DefineIndex(name, table string, columns []string, unique bool) error {
	err := checkIdentifiers(append([]string{name, table}, columns...)...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[name] = index{table: table, columns: append([]string(nil), columns...), unique: unique}

	return nil
}

func (s *Store) index(name string) (index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return index{}, errors.Wrapf(ErrUnknownIndex, "%s.%s", s.name, name)
	}

	return idx, nil
}

// CreateIndex creates a defined index.
func (s *Store) CreateIndex(ctx context.Context, name string) error {
	idx, err := s.index(name)
	if err != nil {
		return err
	}

	unique := ""
	if idx.unique {
		unique = "UNIQUE "
	}
	_, err = s.conn().ExecContext(ctx,
		"CREATE "+unique+"INDEX IF NOT EXISTS "+name+" ON "+idx.table+"("+strings.Join(idx.columns, ", ")+")")

	return errors.Wrapf(err, "unable to create index %s.%s", s.name, name)
}

// DropIndex drops a defined index.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	_, err := s.index(name)
	if err != nil {
		return err
	}

	_, err = s.conn().ExecContext(ctx, "DROP INDEX IF EXISTS "+name)

	return errors.Wrapf(err, "unable to drop index %s.%s", s.name, name)
}

// InsertRows inserts rows, ignoring the ones conflicting with a unique constraint.
func (s *Store) InsertRows(ctx context.Context, table string, rows ...[]any) (err error) {
	err = checkIdentifiers(table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Wrapf(ErrNoRows, "%s.%s", s.name, table)
	}

	params := strings.TrimSuffix(strings.Repeat("?,", len(rows[0])), ",")
	stmt, err := s.conn().PrepareContext(ctx, "INSERT OR IGNORE INTO "+table+" VALUES ("+params+")")
	if err != nil {
		return errors.Wrapf(err, "unable to prepare insert into %s.%s", s.name, table)
	}
	defer func() {
		err = multierr.Append(err, stmt.Close())
	}()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return errors.Wrapf(err, "unable to insert into %s.%s", s.name, table)
		}
	}

	return nil
}

// DeleteRows deletes the rows of table matching where, or every row when where is empty.
func (s *Store) DeleteRows(ctx context.Context, table, where string, args ...any) error {
	err := checkIdentifiers(table)
	if err != nil {
		return err
	}

	query := "DELETE FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	_, err = s.conn().ExecContext(ctx, query, args...)

	return errors.Wrapf(err, "unable to delete from %s.%s", s.name, table)
}

// DefineQuery records a query Query and QueryRow run by name.
func (s *Store) DefineQuery(name, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[name] = query
}

func (s *Store) query(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, ok := s.queries[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownQuery, "%s.%s", s.name, name)
	}

	return query, nil
}

// Query runs a defined query. The caller closes the rows.
func (s *Store) Query(ctx context.Context, name string, args ...any) (*sql.Rows, error) {
	query, err := s.query(name)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to run query %s.%s", s.name, name)
	}

	return rows, nil
}

// QueryStrings runs a defined query and returns its first column.
func (s *Store) QueryStrings(ctx context.Context, name string, args ...any) (values []string, err error) {
	rows, err := s.Query(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
	}()

	for rows.Next() {
		var value string
		err = rows.Scan(&value)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to scan query %s.%s", s.name, name)
		}
		values = append(values, value)
	}

	return values, errors.Wrapf(rows.Err(), "unable to run query %s.%s", s.name, name)
}

// QueryRow runs a defined query expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, name string, args ...any) (*sql.Row, error) {
	query, err := s.query(name)
	if err != nil {
		return nil, err
	}

	return s.conn().QueryRowContext(ctx, query, args...), nil
}

// Transaction runs fn inside a transaction every method of the store joins. The transaction is
// committed when fn succeeds and rolled back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to begin transaction on %s", s.name)
	}

	s.mu.Lock()
	s.tx = tx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.tx = nil
		s.mu.Unlock()
	}()

	err = fn(ctx)
	if err != nil {
		return multierr.Append(err, tx.Rollback())
	}

	return errors.Wrapf(tx.Commit(), "unable to commit transaction on %s", s.name)
}

// UpdateAge stamps table as refreshed now.
func (s *Store) UpdateAge(ctx context.Context, table string) error {
	_, err := s.conn().ExecContext(ctx,
		"INSERT INTO age (name, modified) VALUES (?, CURRENT_TIMESTAMP) "+
			"ON CONFLICT(name) DO UPDATE SET modified = CURRENT_TIMESTAMP", table)

	return errors.Wrapf(err, "unable to update age of %s.%s", s.name, table)
}

// Expired reports whether table was refreshed more than days ago. A table never stamped is expired.
func (s *Store) Expired(ctx context.Context, table string, days int) (bool, error) {
	var age float64
	err := s.conn().QueryRowContext(ctx,
		"SELECT JulianDay(CURRENT_TIMESTAMP) - JulianDay(modified) FROM age WHERE name = ?", table).Scan(&age)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "unable to read age of %s.%s", s.name, table)
	}

	return age > float64(days), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return errors.Wrapf(s.db.Close(), "unable to close datastore %s", s.name)
}

// Registry holds the stores opened during a run by name.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Open opens the store name at path, or returns it if already open.
func (r *Registry) Open(ctx context.Context, name, path string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.stores[name]; ok {
		return st, nil
	}
	st, err := Open(ctx, name, path)
	if err != nil {
		return nil, err
	}
	r.stores[name] = st

	return st, nil
}

// Get returns an open store.
func (r *Registry) Get(name string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStore, "%q", name)
	}

	return st, nil
}

// Close closes every store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for name, st := range r.stores {
		err = multierr.Append(err, st.Close())
		delete(r.stores, name)
	}

	return err
}
