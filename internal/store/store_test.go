package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPhoto() *Photo {
	return &Photo{
		ID:         uuid.New().String(),
		Filename:   "photo_20260825_abc123.jpg",
		FilePath:   "/data/photos/photo_20260825_abc123.jpg",
		Width:      1280,
		Height:     720,
		SizeBytes:  150 * 1024,
		Quality:    85,
		Attempts:   1,
		DurationMs: 2300,
	}
}

func TestStore_Migrations(t *testing.T) {
	s := newTestStore(t)

	// Re-running migrations must be a no-op.
	if err := s.runMigrations(); err != nil {
		t.Fatalf("second runMigrations() error = %v", err)
	}

	for _, table := range []string{"photos", "settings"} {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestPhotoRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Photos()

	p := testPhoto()
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("Create() should populate CreatedAt")
	}

	got, err := repo.Get(p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Filename != p.Filename {
		t.Errorf("filename = %q, want %q", got.Filename, p.Filename)
	}
	if got.Width != 1280 || got.Height != 720 {
		t.Errorf("dimensions = %dx%d, want 1280x720", got.Width, got.Height)
	}
	if got.SizeBytes != p.SizeBytes {
		t.Errorf("size = %d, want %d", got.SizeBytes, p.SizeBytes)
	}
	if got.Attempts != 1 || got.DurationMs != 2300 {
		t.Errorf("attempts/duration = %d/%d, want 1/2300", got.Attempts, got.DurationMs)
	}
}

func TestPhotoRepository_GetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Photos().Get("nope"); err != sql.ErrNoRows {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}

func TestPhotoRepository_DuplicateFilename(t *testing.T) {
	s := newTestStore(t)
	repo := s.Photos()

	p1 := testPhoto()
	if err := repo.Create(p1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p2 := testPhoto()
	p2.Filename = p1.Filename
	if err := repo.Create(p2); err == nil {
		t.Error("Create() with duplicate filename expected error")
	}
}

func TestPhotoRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Photos()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		p := testPhoto()
		p.Filename = p.ID + ".jpg"
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	photos, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(photos) != 3 {
		t.Fatalf("List() returned %d photos, want 3", len(photos))
	}
	for i := 1; i < len(photos); i++ {
		if photos[i].CreatedAt.After(photos[i-1].CreatedAt) {
			t.Errorf("photos not ordered newest first at index %d", i)
		}
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d photos, want 2", len(limited))
	}
}

func TestPhotoRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Photos()

	p := testPhoto()
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(p.ID); err != sql.ErrNoRows {
		t.Errorf("Get() after delete error = %v, want sql.ErrNoRows", err)
	}
}

func TestPhotoRepository_Stats(t *testing.T) {
	s := newTestStore(t)
	repo := s.Photos()

	st, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalPhotos != 0 || st.TotalSizeBytes != 0 {
		t.Errorf("empty stats = %+v, want zeros", st)
	}

	sizes := []int{100, 250, 50}
	for _, size := range sizes {
		p := testPhoto()
		p.Filename = p.ID + ".jpg"
		p.SizeBytes = size
		if err := repo.Create(p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	st, err = repo.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalPhotos != 3 {
		t.Errorf("TotalPhotos = %d, want 3", st.TotalPhotos)
	}
	if st.TotalSizeBytes != 400 {
		t.Errorf("TotalSizeBytes = %d, want 400", st.TotalSizeBytes)
	}
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)

	val, err := s.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if val != "" {
		t.Errorf("GetSetting(missing) = %q, want empty", val)
	}

	if err := s.SetSetting("transfer_endpoint", "ws://phone:9000/recv"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if err := s.SetSetting("transfer_endpoint", "ws://phone:9001/recv"); err != nil {
		t.Fatalf("SetSetting() upsert error = %v", err)
	}

	val, err = s.GetSetting("transfer_endpoint")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if val != "ws://phone:9001/recv" {
		t.Errorf("GetSetting() = %q, want updated value", val)
	}
}
