// Package sqlite - stores detection records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/record"
)

// ErrNotFound is returned by Get for an unknown identifier.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens the database at path and creates the tables that do not exist.
// Use ":memory:" for a private in-memory database.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		image_id TEXT PRIMARY KEY,
		image_name TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		captured_at DATETIME,
		processed_at DATETIME NOT NULL,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		dominant_class TEXT NOT NULL,
		health_status INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS class_counts (
		image_id TEXT NOT NULL,
		class_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (image_id, class_name),
		FOREIGN KEY (image_id) REFERENCES records(image_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		class_id INTEGER NOT NULL,
		class_name TEXT NOT NULL,
		x REAL DEFAULT 0,
		y REAL DEFAULT 0,
		width REAL DEFAULT 0,
		height REAL DEFAULT 0,
		confidence REAL DEFAULT 0,
		FOREIGN KEY (image_id) REFERENCES records(image_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_id);
	CREATE INDEX IF NOT EXISTS idx_records_processed_at ON records(processed_at);
	CREATE INDEX IF NOT EXISTS idx_detections_image_id ON detections(image_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Save upserts rec and replaces its counts and detections in one
// transaction.
func (db *DB) Save(ctx context.Context, rec *record.DetectionRecord) (err error) {
	if rec == nil || rec.ImageIdentifier == "" {
		return errors.New("record has no image identifier")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (image_id, image_name, owner_id, captured_at, processed_at, width, height, dominant_class, health_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(image_id) DO UPDATE SET
			image_name = excluded.image_name,
			owner_id = excluded.owner_id,
			captured_at = excluded.captured_at,
			processed_at = excluded.processed_at,
			width = excluded.width,
			height = excluded.height,
			dominant_class = excluded.dominant_class,
			health_status = excluded.health_status`,
		rec.ImageIdentifier, rec.ImageName, rec.OwnerID, rec.CapturedAt.UTC(), rec.ProcessedAt.UTC(),
		rec.ImageWidth, rec.ImageHeight, rec.DominantClass, rec.HealthStatus,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert record %s", rec.ImageIdentifier)
	}

	for _, table := range []string{"class_counts", "detections"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE image_id = ?", rec.ImageIdentifier); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	for class, n := range rec.Counts {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO class_counts (image_id, class_name, count) VALUES (?, ?, ?)",
			rec.ImageIdentifier, class, n,
		); err != nil {
			return errors.Wrap(err, "insert class count")
		}
	}

	for i, d := range rec.Detections {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO detections (image_id, ordinal, class_id, class_name, x, y, width, height, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ImageIdentifier, i, d.ClassID, d.ClassName, d.XPos, d.YPos, d.Width, d.Height, d.Confidence,
		); err != nil {
			return errors.Wrap(err, "insert detection")
		}
	}

	return errors.Wrap(tx.Commit(), "commit record")
}

// Get loads the record stored for imageID, or ErrNotFound.
func (db *DB) Get(ctx context.Context, imageID string) (*record.DetectionRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, `
		SELECT image_id, image_name, owner_id, captured_at, processed_at, width, height, dominant_class, health_status
		FROM records WHERE image_id = ?`, imageID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, imageID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load record %s", imageID)
	}

	if err := db.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByOwner returns the records of ownerID, oldest processing time first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]*record.DetectionRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT image_id, image_name, owner_id, captured_at, processed_at, width, height, dominant_class, health_status
		FROM records WHERE owner_id = ? ORDER BY processed_at, image_id`, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list records of %s", ownerID)
	}

	var records []*record.DetectionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, rec := range records {
		if err := db.loadChildren(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*record.DetectionRecord, error) {
	var (
		rec      record.DetectionRecord
		captured sql.NullTime
		proc     time.Time
	)
	if err := s.Scan(
		&rec.ImageIdentifier, &rec.ImageName, &rec.OwnerID, &captured, &proc,
		&rec.ImageWidth, &rec.ImageHeight, &rec.DominantClass, &rec.HealthStatus,
	); err != nil {
		return nil, err
	}
	if captured.Valid {
		rec.CapturedAt = captured.Time
	}
	rec.ProcessedAt = proc

	return &rec, nil
}

func (db *DB) loadChildren(ctx context.Context, rec *record.DetectionRecord) error {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT class_name, count FROM class_counts WHERE image_id = ?", rec.ImageIdentifier)
	if err != nil {
		return errors.Wrap(err, "load class counts")
	}
	rec.Counts = record.DetectionCounts{}
	for rows.Next() {
		var (
			class string
			n     int
		)
		if err := rows.Scan(&class, &n); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "scan class count")
		}
		rec.Counts[class] = n
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = db.conn.QueryContext(ctx, `
		SELECT class_id, class_name, x, y, width, height, confidence
		FROM detections WHERE image_id = ? ORDER BY ordinal`, rec.ImageIdentifier)
	if err != nil {
		return errors.Wrap(err, "load detections")
	}
	defer rows.Close()

	rec.Detections = []postprocess.Detection{}
	for rows.Next() {
		var d postprocess.Detection
		if err := rows.Scan(&d.ClassID, &d.ClassName, &d.XPos, &d.YPos, &d.Width, &d.Height, &d.Confidence); err != nil {
			return errors.Wrap(err, "scan detection")
		}
		rec.Detections = append(rec.Detections, d)
	}
	return rows.Err()
}
