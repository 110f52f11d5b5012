package store

import (
	"database/sql"
	"time"
)

// Photo represents a captured photo record stored in the database. The
// compressed payload lives on disk at FilePath; the row carries metadata.
type Photo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"file_path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
	Quality    int       `json:"quality"`
	Attempts   int       `json:"attempts"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats summarizes the capture log.
type Stats struct {
	TotalPhotos    int   `json:"total_photos"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// PhotoRepository provides CRUD operations for photo records.
type PhotoRepository struct {
	db *sql.DB
}

// Photos returns the photo repository for this store.
func (s *Store) Photos() *PhotoRepository {
	return &PhotoRepository{db: s.db}
}

// Create inserts a photo record.
func (r *PhotoRepository) Create(p *Photo) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO photos (id, filename, file_path, width, height, size_bytes, quality, attempts, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Filename, p.FilePath, p.Width, p.Height, p.SizeBytes, p.Quality, p.Attempts, p.DurationMs, p.CreatedAt,
	)
	return err
}

// Get retrieves a photo record by ID. Returns sql.ErrNoRows when absent.
func (r *PhotoRepository) Get(id string) (*Photo, error) {
	row := r.db.QueryRow(
		`SELECT id, filename, file_path, width, height, size_bytes, quality, attempts, duration_ms, created_at
		 FROM photos WHERE id = ?`, id)
	return scanPhoto(row)
}

// List retrieves photo records newest first, up to limit (0 = no limit).
func (r *PhotoRepository) List(limit int) ([]Photo, error) {
	query := `SELECT id, filename, file_path, width, height, size_bytes, quality, attempts, duration_ms, created_at
	          FROM photos ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = r.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.Filename, &p.FilePath, &p.Width, &p.Height,
			&p.SizeBytes, &p.Quality, &p.Attempts, &p.DurationMs, &p.CreatedAt); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// Delete removes a photo record by ID.
func (r *PhotoRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM photos WHERE id = ?`, id)
	return err
}

// Stats returns totals over the capture log.
func (r *PhotoRepository) Stats() (*Stats, error) {
	var st Stats
	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM photos`,
	).Scan(&st.TotalPhotos, &st.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanPhoto(row *sql.Row) (*Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.Filename, &p.FilePath, &p.Width, &p.Height,
		&p.SizeBytes, &p.Quality, &p.Attempts, &p.DurationMs, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
