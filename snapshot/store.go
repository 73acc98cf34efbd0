package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/slotwalk/heap"
)

// Supported database/sql drivers.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

var (
	// ErrUnknownDriver is returned by Open for drivers other than the above.
	ErrUnknownDriver = errors.New("unknown snapshot driver")
	// ErrDriverUnavailable is returned by Open for DuckDB in builds without cgo.
	ErrDriverUnavailable = errors.New("snapshot driver not compiled in")
)

// duckDBAvailable is set when the DuckDB driver is linked (cgo builds).
var duckDBAvailable bool

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		taken TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		snapshot TEXT NOT NULL,
		addr BIGINT NOT NULL,
		layout TEXT NOT NULL,
		slots INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		snapshot TEXT NOT NULL,
		src BIGINT NOT NULL,
		dst BIGINT NOT NULL,
		kind TEXT NOT NULL,
		ref INTEGER NOT NULL,
		name TEXT NOT NULL
	)`,
}

// Store persists snapshots in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	log    commonlog.Logger
}

// Open opens (creating if needed) a snapshot database at path.
func Open(driver, path string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverDuckDB {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if driver == DriverDuckDB && !duckDBAvailable {
		return nil, fmt.Errorf("%w: %q requires cgo", ErrDriverUnavailable, driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &Store{
		db:     db,
		driver: driver,
		log:    commonlog.GetLogger("slotwalk.snapshot"),
	}, nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save writes snap in a single transaction.
func (s *Store) Save(snap *Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`INSERT INTO snapshots (id, taken) VALUES (?, ?)`,
		snap.ID, snap.Taken.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	nodeStmt, err := tx.Prepare(`INSERT INTO nodes (snapshot, addr, layout, slots) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing node insert: %w", err)
	}
	defer nodeStmt.Close()
	for _, n := range snap.Nodes {
		if _, err = nodeStmt.Exec(snap.ID, int64(n.Address), n.Layout, n.Slots); err != nil {
			return fmt.Errorf("inserting node %#x: %w", n.Address, err)
		}
	}

	edgeStmt, err := tx.Prepare(`INSERT INTO edges (snapshot, src, dst, kind, ref, name) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range snap.Edges {
		if _, err = edgeStmt.Exec(snap.ID, int64(e.From), int64(e.To), e.Kind, int64(e.Ref), e.Name); err != nil {
			return fmt.Errorf("inserting edge %#x -> %#x: %w", e.From, e.To, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	s.log.Debugf("saved snapshot %s: %d nodes, %d edges", snap.ID, len(snap.Nodes), len(snap.Edges))
	return nil
}

// Snapshots returns the IDs of stored snapshots, oldest first.
func (s *Store) Snapshots() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM snapshots ORDER BY taken, id`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Referrers returns the edges of snapshot id that point at addr. Symbol
// edges are excluded since their target is not an address.
func (s *Store) Referrers(id string, addr heap.Address) ([]Edge, error) {
	rows, err := s.db.Query(`SELECT src, dst, kind, ref, name FROM edges
		WHERE snapshot = ? AND dst = ? AND kind <> ?
		ORDER BY src, kind`, id, int64(addr), EdgeSymbol)
	if err != nil {
		return nil, fmt.Errorf("querying referrers: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var (
			src, dst, ref int64
			e             Edge
		)
		if err := rows.Scan(&src, &dst, &e.Kind, &ref, &e.Name); err != nil {
			return nil, err
		}
		e.From, e.To, e.Ref = uint64(src), uint64(dst), uint32(ref)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
