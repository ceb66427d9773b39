package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpetrov/jobpool/internal/model"
)

// SQLiteStore persists jobs, sources, and the refresh status singleton.
// Each upsert runs in its own transaction, so concurrent writers to the
// same URL row are serialized by the database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath, ensures the
// schema exists, and seeds the refresh_status singleton row.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			title          TEXT NOT NULL,
			company        TEXT,
			location       TEXT,
			description    TEXT,
			url            TEXT NOT NULL UNIQUE,
			source         TEXT,
			source_name    TEXT,
			level          TEXT,
			posted_date    DATETIME,
			collected_date DATETIME,
			is_active      BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			type         TEXT NOT NULL,
			locator      TEXT NOT NULL,
			name         TEXT,
			provider     TEXT,
			is_active    BOOLEAN NOT NULL DEFAULT 1,
			created_date DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_status (
			id                INTEGER PRIMARY KEY CHECK (id = 1),
			last_refresh      DATETIME,
			jobs_count        INTEGER NOT NULL DEFAULT 0,
			sources_count     INTEGER NOT NULL DEFAULT 0,
			api_limit_reached BOOLEAN NOT NULL DEFAULT 0,
			api_limit_date    DATETIME
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	if _, err := db.Exec(`INSERT OR IGNORE INTO refresh_status (id) VALUES (1)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding refresh status: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertJob inserts job if its URL is unseen, otherwise refreshes the
// existing row: title, company, location, description, and level are
// overwritten with the latest observation; posted_date only advances
// forward; collected_date and is_active are always refreshed.
func (s *SQLiteStore) UpsertJob(job model.Job, sourceType, sourceName string) (model.UpsertResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("upserting job %s: %w", job.URL, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var (
		id       int64
		oldLevel sql.NullString
		oldDate  sql.NullTime
	)
	err = tx.QueryRow(
		`SELECT id, level, posted_date FROM jobs WHERE url = ?`, job.URL,
	).Scan(&id, &oldLevel, &oldDate)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(
			`INSERT INTO jobs (title, company, location, description, url, source, source_name, level, posted_date, collected_date, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			job.Title, job.Company, job.Location, job.Description, job.URL,
			sourceType, sourceName, string(job.Level), nullableTime(job.PostedAt), now,
		)
		if err != nil {
			return "", fmt.Errorf("inserting job %s: %w", job.URL, err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("inserting job %s: %w", job.URL, err)
		}
		return model.Created, nil

	case err != nil:
		return "", fmt.Errorf("upserting job %s: %w", job.URL, err)
	}

	level := string(job.Level)
	if level == "" && oldLevel.Valid {
		level = oldLevel.String
	}

	// posted_date is monotonic: keep the stored value unless the new
	// observation is strictly more recent.
	posted := oldDate
	if job.PostedAt != nil && (!oldDate.Valid || job.PostedAt.After(oldDate.Time)) {
		posted = sql.NullTime{Time: job.PostedAt.UTC(), Valid: true}
	}

	_, err = tx.Exec(
		`UPDATE jobs SET title = ?, company = ?, location = ?, description = ?, level = ?,
		 posted_date = ?, collected_date = ?, is_active = 1 WHERE id = ?`,
		job.Title, job.Company, job.Location, job.Description, level, posted, now, id,
	)
	if err != nil {
		return "", fmt.Errorf("updating job %s: %w", job.URL, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("updating job %s: %w", job.URL, err)
	}
	return model.Updated, nil
}

// AddSource registers a new collection source and returns its id.
func (s *SQLiteStore) AddSource(src model.Source) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sources (type, locator, name, provider, is_active, created_date) VALUES (?, ?, ?, ?, 1, ?)`,
		src.Type, src.Locator, src.Name, src.Provider, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("adding source %s/%s: %w", src.Type, src.Locator, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("adding source %s/%s: %w", src.Type, src.Locator, err)
	}
	return id, nil
}

// ActiveSources returns all active sources in creation order.
func (s *SQLiteStore) ActiveSources() ([]model.Source, error) {
	rows, err := s.db.Query(
		`SELECT id, type, locator, name, provider, created_date FROM sources WHERE is_active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var (
			src      model.Source
			name     sql.NullString
			provider sql.NullString
			created  sql.NullTime
		)
		if err := rows.Scan(&src.ID, &src.Type, &src.Locator, &name, &provider, &created); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		src.Name = name.String
		src.Provider = provider.String
		src.CreatedAt = created.Time
		src.IsActive = true
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// RemoveSource soft-deletes the source and deactivates every job it
// produced, matched on (source type, source label). Returns false when
// no such active source exists.
func (s *SQLiteStore) RemoveSource(id int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("removing source %d: %w", id, err)
	}
	defer tx.Rollback()

	var (
		typ     string
		locator string
		name    sql.NullString
	)
	err = tx.QueryRow(
		`SELECT type, locator, name FROM sources WHERE id = ? AND is_active = 1`, id,
	).Scan(&typ, &locator, &name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing source %d: %w", id, err)
	}

	if _, err := tx.Exec(`UPDATE sources SET is_active = 0 WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("removing source %d: %w", id, err)
	}

	label := name.String
	if label == "" {
		label = locator
	}
	if _, err := tx.Exec(
		`UPDATE jobs SET is_active = 0 WHERE source = ? AND source_name = ?`, typ, label,
	); err != nil {
		return false, fmt.Errorf("deactivating jobs for source %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("removing source %d: %w", id, err)
	}
	return true, nil
}

// RecordRefresh recomputes the aggregate counts and stamps the refresh
// time. Called once per orchestration pass.
func (s *SQLiteStore) RecordRefresh() error {
	_, err := s.db.Exec(
		`UPDATE refresh_status SET
			last_refresh  = ?,
			jobs_count    = (SELECT COUNT(*) FROM jobs WHERE is_active = 1),
			sources_count = (SELECT COUNT(*) FROM sources WHERE is_active = 1)
		 WHERE id = 1`,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording refresh: %w", err)
	}
	return nil
}

// MarkQuotaExhausted records that the API provider's daily request
// quota was hit at the given time.
func (s *SQLiteStore) MarkQuotaExhausted(at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE refresh_status SET api_limit_reached = 1, api_limit_date = ? WHERE id = 1`,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking quota exhausted: %w", err)
	}
	return nil
}

// QuotaExhausted reports whether the daily quota is still exhausted as
// of now. The flag auto-clears once the wall-clock date advances past
// the day it was recorded (daily reset, not an external signal).
func (s *SQLiteStore) QuotaExhausted(now time.Time) (bool, error) {
	var (
		reached bool
		date    sql.NullTime
	)
	err := s.db.QueryRow(
		`SELECT api_limit_reached, api_limit_date FROM refresh_status WHERE id = 1`,
	).Scan(&reached, &date)
	if err != nil {
		return false, fmt.Errorf("reading quota status: %w", err)
	}

	if !reached {
		return false, nil
	}
	if date.Valid && !dayAfter(now, date.Time) {
		return true, nil
	}

	// Date rolled over: reset the flag.
	_, err = s.db.Exec(
		`UPDATE refresh_status SET api_limit_reached = 0, api_limit_date = NULL WHERE id = 1`,
	)
	if err != nil {
		return false, fmt.Errorf("resetting quota status: %w", err)
	}
	return false, nil
}

// Status returns the refresh status singleton.
func (s *SQLiteStore) Status() (model.RefreshStatus, error) {
	var (
		status    model.RefreshStatus
		refreshed sql.NullTime
		limitDate sql.NullTime
	)
	err := s.db.QueryRow(
		`SELECT last_refresh, jobs_count, sources_count, api_limit_reached, api_limit_date
		 FROM refresh_status WHERE id = 1`,
	).Scan(&refreshed, &status.JobsCount, &status.SourcesCount, &status.APILimitReached, &limitDate)
	if err != nil {
		return model.RefreshStatus{}, fmt.Errorf("reading refresh status: %w", err)
	}
	if refreshed.Valid {
		t := refreshed.Time
		status.LastRefresh = &t
	}
	if limitDate.Valid {
		t := limitDate.Time
		status.APILimitDate = &t
	}
	return status, nil
}

// ListOptions narrows ListJobs results. Zero values mean "no filter".
type ListOptions struct {
	Search   string      // substring over title, company, description
	Location string      // substring over location
	Level    model.Level // exact match on the stored bucket
	Limit    int
}

// ListJobs returns active jobs, newest collection first. Level filters
// match the stored bucket exactly: an executive job never shows up in a
// mid listing.
func (s *SQLiteStore) ListJobs(opts ListOptions) ([]model.StoredJob, error) {
	query := `SELECT id, title, company, location, description, url, source, source_name, level, posted_date, collected_date, is_active
		FROM jobs WHERE is_active = 1`
	var args []any

	if opts.Search != "" {
		query += ` AND (title LIKE ? OR company LIKE ? OR description LIKE ?)`
		pat := "%" + opts.Search + "%"
		args = append(args, pat, pat, pat)
	}
	if opts.Location != "" {
		query += ` AND location LIKE ?`
		args = append(args, "%"+opts.Location+"%")
	}
	if opts.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(opts.Level))
	}

	query += ` ORDER BY collected_date DESC, posted_date DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.StoredJob
	for rows.Next() {
		var (
			j                         model.StoredJob
			company, location, desc   sql.NullString
			source, sourceName, level sql.NullString
			posted, collected         sql.NullTime
		)
		err := rows.Scan(&j.ID, &j.Title, &company, &location, &desc, &j.URL,
			&source, &sourceName, &level, &posted, &collected, &j.IsActive)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Company = company.String
		j.Location = location.String
		j.Description = desc.String
		j.Source = source.String
		j.SourceName = sourceName.String
		j.Level = model.Level(level.String)
		if posted.Valid {
			t := posted.Time
			j.PostedAt = &t
		}
		j.CollectedAt = collected.Time
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// dayAfter reports whether now falls on a later UTC calendar day than
// recorded, i.e. the daily quota has reset.
func dayAfter(now, recorded time.Time) bool {
	n := now.UTC().Truncate(24 * time.Hour)
	r := recorded.UTC().Truncate(24 * time.Hour)
	return n.After(r)
}
