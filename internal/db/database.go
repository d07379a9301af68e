package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// InMemory keeps the directory for the lifetime of the process only.
const InMemory = ":memory:"

// Database is the room directory: ids and names of rooms handed out over HTTP.
// Diagram content never goes here.
type Database struct {
	db *sql.DB
}

type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	inMemory := dbPath == InMemory || strings.HasPrefix(dbPath, "file:")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Every new connection to :memory: is a new empty database
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_updated_at ON rooms(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// CreateRoom inserts a directory row. An existing id is left untouched.
func (d *Database) CreateRoom(id, name string) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO rooms (id, name) VALUES (?, ?)",
		id, name,
	)
	return err
}

// GetRoom returns nil, nil when the id is unknown.
func (d *Database) GetRoom(id string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT id, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// Matches the text CURRENT_TIMESTAMP writes, so stored times compare as strings.
const timeLayout = "2006-01-02 15:04:05"

// TouchRoom sets the room's last activity time.
func (d *Database) TouchRoom(id string, at time.Time) error {
	_, err := d.db.Exec(
		"UPDATE rooms SET updated_at = ? WHERE id = ?",
		at.UTC().Format(timeLayout), id,
	)
	return err
}

func (d *Database) DeleteRoom(id string) error {
	_, err := d.db.Exec("DELETE FROM rooms WHERE id = ?", id)
	return err
}

// DeleteRoomsIdleSince removes rows whose last activity is before cutoff and reports
// how many went.
func (d *Database) DeleteRoomsIdleSince(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec(
		"DELETE FROM rooms WHERE updated_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	return stats, nil
}
