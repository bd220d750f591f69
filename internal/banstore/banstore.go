// Package banstore persists the set of active group bans across process
// restarts in an embedded, pure-Go SQLite database. Durability is
// best-effort: loss of the most recent write on a crash is tolerable per
// the spec's Ban Store contract.
package banstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Record is a single ban entry. UserID==0 denotes a whole-group ban;
// LiftTime==-1 denotes indefinite duration.
type Record struct {
	GroupID  int64
	UserID   int64
	LiftTime int64
}

// Store is a mutex-guarded wrapper around a SQLite connection, following
// the migration-table-and-guarded-CRUD shape used elsewhere in the
// surrounding ecosystem for small embedded-persistence components.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if absent) the database at path and runs
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ban store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ban store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bans (
			group_id  INTEGER NOT NULL,
			user_id   INTEGER NOT NULL,
			lift_time INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)
	`)
	return err
}

// Upsert inserts or replaces a ban identified by (group_id, user_id);
// mismatched lift_time on an existing record is overwritten.
func (s *Store) Upsert(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO bans (group_id, user_id, lift_time) VALUES (?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET lift_time = excluded.lift_time`,
		r.GroupID, r.UserID, r.LiftTime,
	)
	return err
}

// Delete removes the ban identified by (group_id, user_id), if present.
func (s *Store) Delete(groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM bans WHERE group_id = ? AND user_id = ?`, groupID, userID)
	return err
}

// ReadAll returns every ban record currently stored.
func (s *Store) ReadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT group_id, user_id, lift_time FROM bans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.GroupID, &r.UserID, &r.LiftTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
