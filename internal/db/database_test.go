package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "synapse-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func backdate(t *testing.T, db *Database, id string, age time.Duration) {
	t.Helper()
	if err := db.TouchRoom(id, time.Now().Add(-age)); err != nil {
		t.Fatalf("Failed to backdate room: %v", err)
	}
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := New(InMemory)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	defer db.Close()

	if err := db.CreateRoom("mem-room", ""); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	room, err := db.GetRoom("mem-room")
	if err != nil || room == nil {
		t.Fatalf("Room should survive across queries, got %v, %v", room, err)
	}
}

func TestRoomOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Create room
	err := db.CreateRoom("test-room", "Test Room")
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	// Get room
	room, err := db.GetRoom("test-room")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist")
	}
	if room.ID != "test-room" {
		t.Errorf("Expected room ID 'test-room', got '%s'", room.ID)
	}
	if room.Name != "Test Room" {
		t.Errorf("Expected room name 'Test Room', got '%s'", room.Name)
	}
	if room.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	// Creating again keeps the original name
	if err := db.CreateRoom("test-room", "Renamed"); err != nil {
		t.Fatalf("Duplicate create should not fail: %v", err)
	}
	room, _ = db.GetRoom("test-room")
	if room.Name != "Test Room" {
		t.Errorf("Duplicate create should not overwrite, got '%s'", room.Name)
	}

	// Get non-existent room
	room, err = db.GetRoom("non-existent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Non-existent room should return nil")
	}

	err = db.DeleteRoom("test-room")
	if err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}

	// Verify deletion
	room, err = db.GetRoom("test-room")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Deleted room should not exist")
	}
}

func TestListRooms(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		err := db.CreateRoom("room-"+string(rune('a'+i)), "Room "+string(rune('A'+i)))
		if err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}

	rooms, err := db.ListRooms(10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 5 {
		t.Errorf("Expected 5 rooms, got %d", len(rooms))
	}

	rooms, err = db.ListRooms(2, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms with limit, got %d", len(rooms))
	}

	rooms, err = db.ListRooms(2, 3)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms with offset, got %d", len(rooms))
	}
}

func TestDeleteStaleRooms(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"fresh", "old", "ancient"} {
		if err := db.CreateRoom(id, ""); err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}
	backdate(t, db, "old", 48*time.Hour)
	backdate(t, db, "ancient", 30*24*time.Hour)

	deleted, err := db.DeleteRoomsIdleSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to delete stale rooms: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 stale rooms deleted, got %d", deleted)
	}

	if room, _ := db.GetRoom("fresh"); room == nil {
		t.Error("Fresh room should survive")
	}
	if room, _ := db.GetRoom("old"); room != nil {
		t.Error("Old room should be gone")
	}
}

func TestTouchRoomKeepsRoomFresh(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.CreateRoom("busy", "")
	backdate(t, db, "busy", 48*time.Hour)

	if err := db.TouchRoom("busy", time.Now()); err != nil {
		t.Fatalf("Failed to touch room: %v", err)
	}

	deleted, err := db.DeleteRoomsIdleSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to delete stale rooms: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Touched room should not be stale, %d deleted", deleted)
	}

	room, _ := db.GetRoom("busy")
	if time.Since(room.UpdatedAt) > time.Minute {
		t.Errorf("Expected fresh updated_at, got %v", room.UpdatedAt)
	}
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := db.CreateRoom("stats-room-"+string(rune('a'+i)), ""); err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats["room_count"].(int) != 3 {
		t.Errorf("Expected 3 rooms, got %v", stats["room_count"])
	}
}
