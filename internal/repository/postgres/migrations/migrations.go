package migrations

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/template"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// MinServingVersion is the oldest schema the server can run against.
// Later versions only add optional columns.
const MinServingVersion uint = 3

// OwnerColumnVersion is the first schema version carrying structure.owner_id
const OwnerColumnVersion uint = 4

// HasOwnerColumn reports whether a database at version v records node owners
func HasOwnerColumn(v uint) bool {
	return v >= OwnerColumnVersion
}

// Status describes the schema version of a database relative to this binary
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// UpToDate reports whether the database is exactly at the binary's version
func (s Status) UpToDate() bool {
	return !s.Dirty && s.Version == s.Latest
}

// Servable reports whether a server built from this binary can run against
// the database, possibly with optional columns missing.
func (s Status) Servable() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", s.Version)
	case s.Version < MinServingVersion:
		return fmt.Errorf("database is at version %d, at least %d is required (run migrations)", s.Version, MinServingVersion)
	case s.Version > s.Latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)", s.Version, s.Latest)
	}
	return nil
}

// Migrator runs the embedded migrations for one table prefix
type Migrator struct {
	db     *sql.DB
	prefix string
	table  string
}

// New creates a migrator. migrationsTable is the (prefixed) bookkeeping table.
// The caller owns db.
func New(db *sql.DB, prefix, migrationsTable string) *Migrator {
	return &Migrator{db: db, prefix: prefix, table: migrationsTable}
}

// NewForPool creates a migrator over a database/sql view of pool.
// Call the returned close function when done; it leaves pool open.
func NewForPool(pool *pgxpool.Pool, prefix, migrationsTable string) (*Migrator, func() error) {
	db := stdlib.OpenDBFromPool(pool)
	return New(db, prefix, migrationsTable), db.Close
}

// Up runs all pending migrations to bring the database to the latest version.
func (m *Migrator) Up() error {
	mg, err := m.newMigrate()
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Not closed: closing would close the caller's db

	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Status reports the current and latest schema versions.
// A database without any version reports Version 0.
func (m *Migrator) Status() (Status, error) {
	mg, err := m.newMigrate()
	if err != nil {
		return Status{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	latest, err := latestVersion(m.source())
	if err != nil {
		return Status{}, fmt.Errorf("failed to determine latest version: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return Status{Latest: latest}, nil
		}
		return Status{}, fmt.Errorf("failed to get database version: %w", err)
	}

	return Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// Check verifies that the database schema is exactly at the latest version.
func (m *Migrator) Check() error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", st.Version)
	case st.Version == 0:
		return fmt.Errorf("database has no schema version (needs migration)")
	case st.Version < st.Latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			st.Version, st.Latest, st.Latest-st.Version)
	case st.Version > st.Latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			st.Version, st.Latest)
	}
	return nil
}

func (m *Migrator) source() fs.FS {
	return &prefixedFS{base: migrationFiles, data: struct{ Prefix string }{m.prefix}}
}

// newMigrate creates a migrate instance over the prefixed migration files.
func (m *Migrator) newMigrate() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(m.source(), "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := pgxmigrate.WithInstance(m.db, &pgxmigrate.Config{MigrationsTable: m.table})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return mg, nil
}

// latestVersion returns the highest version number available in the files.
func latestVersion(fsys fs.FS) (uint, error) {
	src, err := iofs.New(fsys, "files")
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			// Any error from Next() means there are no more migrations
			return version, nil
		}
		version = next
	}
}

// prefixedFS renders each migration file as a text/template so the same
// files serve every table prefix. Directories pass through untouched.
type prefixedFS struct {
	base fs.FS
	data any
}

func (p *prefixedFS) Open(name string) (fs.File, error) {
	f, err := p.base.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		return f, nil
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(info.Name()).Parse(string(raw))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p.data); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &renderedFile{Reader: bytes.NewReader(buf.Bytes()), info: renderedInfo{info, int64(buf.Len())}}, nil
}

// ReadDir delegates to the embedded directory listing
func (p *prefixedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(p.base, name)
}

type renderedFile struct {
	*bytes.Reader
	info renderedInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }

type renderedInfo struct {
	fs.FileInfo
	size int64
}

func (i renderedInfo) Size() int64 { return i.size }
