package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per-connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS base_models (
	id                 TEXT PRIMARY KEY,
	brand              TEXT NOT NULL,
	brand_key          TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	model_name         TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL DEFAULT 'catalog',
	extraction_quality REAL NOT NULL DEFAULT 0,
	specifications     TEXT NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	line_index         INTEGER NOT NULL,
	model_code         TEXT NOT NULL,
	brand              TEXT NOT NULL,
	brand_key          TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	base_model_id      TEXT NOT NULL,
	price              REAL NOT NULL,
	overall_confidence REAL NOT NULL,
	confidence_level   TEXT NOT NULL,
	requires_review    INTEGER NOT NULL,
	review_status      TEXT NOT NULL,
	data               TEXT NOT NULL,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL REFERENCES products(id),
	seq               INTEGER NOT NULL,
	stage             TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL,
	before_state      TEXT,
	after_state       TEXT,
	confidence_change REAL NOT NULL DEFAULT 0,
	actor             TEXT NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	counts     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_base_models_brand_year ON base_models(brand_key, model_year);
CREATE INDEX IF NOT EXISTS idx_products_level ON products(confidence_level);
CREATE INDEX IF NOT EXISTS idx_products_review ON products(review_status);
CREATE INDEX IF NOT EXISTS idx_audit_product ON audit_entries(product_id, seq);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- catalog ---

func (s *SQLiteStore) SaveBaseModels(ctx context.Context, models []model.BaseModelSpecification) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save base models")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	for _, m := range models {
		specs, err := json.Marshal(m.Specifications)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal specifications %s", m.ID)
		}
		source := m.Source
		if source == "" {
			source = model.SourceCatalog
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO base_models (id, brand, brand_key, model_year, model_name, category, source, extraction_quality, specifications, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET brand = excluded.brand, brand_key = excluded.brand_key,
			   model_year = excluded.model_year, model_name = excluded.model_name, category = excluded.category,
			   source = excluded.source, extraction_quality = excluded.extraction_quality,
			   specifications = excluded.specifications, updated_at = excluded.updated_at`,
			m.ID, m.Brand, model.BrandKey(m.Brand), m.ModelYear, m.ModelName, m.Category,
			string(source), m.ExtractionQuality, string(specs), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert base model %s", m.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit base models")
	}
	return len(models), nil
}

func (s *SQLiteStore) ListBaseModels(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand, model_year, model_name, category, source, extraction_quality, specifications
		 FROM base_models WHERE brand_key = ? AND model_year = ? ORDER BY id`,
		model.BrandKey(brand), year,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list base models")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BaseModelSpecification
	for rows.Next() {
		var m model.BaseModelSpecification
		var specs string
		if err := rows.Scan(&m.ID, &m.Brand, &m.ModelYear, &m.ModelName, &m.Category, &m.Source, &m.ExtractionQuality, &specs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan base model")
		}
		if err := json.Unmarshal([]byte(specs), &m.Specifications); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal specifications %s", m.ID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list base models iterate")
}

// --- products ---

func (s *SQLiteStore) SaveProduct(ctx context.Context, p *model.ProductSpecification, audit []model.AuditEntry) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal product")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save product")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, line_index, model_code, brand, brand_key, model_year, base_model_id, price,
		   overall_confidence, confidence_level, requires_review, review_status, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LineIndex, p.ModelCode, p.Brand, model.BrandKey(p.Brand), p.ModelYear, p.BaseModelID, p.Price,
		p.OverallConfidence, string(p.ConfidenceLevel), p.RequiresReview, string(p.ReviewStatus), string(data),
		p.CreatedAt, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert product %s", p.ID)
	}
	if err := insertAuditSQLite(ctx, tx, audit, 0); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit product")
}

func insertAuditSQLite(ctx context.Context, tx *sql.Tx, audit []model.AuditEntry, seq int) error {
	for i, a := range audit {
		before, after, err := marshalStates(a)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit entry")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_entries (id, product_id, seq, stage, action, before_state, after_state, confidence_change, actor, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ProductID, seq+i, string(a.Stage), a.Action, nullText(before), nullText(after), a.ConfidenceChange, a.Actor, a.Timestamp,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert audit entry %s", a.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.ProductSpecification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data, review_status FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: product %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, f ProductFilter) ([]model.ProductSpecification, error) {
	query := `SELECT data, review_status FROM products WHERE 1=1`
	var args []any
	if f.Brand != "" {
		query += ` AND brand_key = ?`
		args = append(args, model.BrandKey(f.Brand))
	}
	if f.ModelYear > 0 {
		query += ` AND model_year = ?`
		args = append(args, f.ModelYear)
	}
	if f.Level != "" {
		query += ` AND confidence_level = ?`
		args = append(args, string(f.Level))
	}
	if f.ReviewStatus != "" {
		query += ` AND review_status = ?`
		args = append(args, string(f.ReviewStatus))
	}
	if f.RequiresReview != nil {
		query += ` AND requires_review = ?`
		args = append(args, *f.RequiresReview)
	}
	query += ` ORDER BY created_at DESC, line_index LIMIT ?`
	args = append(args, listLimit(f.Limit))
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProductSpecification
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, actor string) error {
	if !status.Valid() {
		return eris.Errorf("sqlite: invalid review status %q", status)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin review update")
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRowContext(ctx, `SELECT review_status FROM products WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: product %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read review status %s", id)
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET review_status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update review status %s", id)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries WHERE product_id = ?`, id).Scan(&seq); err != nil {
		return eris.Wrapf(err, "sqlite: count audit entries %s", id)
	}
	entry := reviewEntry(uuid.NewString(), id, model.ReviewStatus(current), status, actor, now)
	if err := insertAuditSQLite(ctx, tx, []model.AuditEntry{entry}, seq); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit review update")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, productID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, stage, action, before_state, after_state, confidence_change, actor, created_at
		 FROM audit_entries WHERE product_id = ? ORDER BY seq`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		var before, after sql.NullString
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Stage, &a.Action, &before, &after, &a.ConfidenceChange, &a.Actor, &a.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		if err := unmarshalState(before.String, &a.Before); err != nil {
			return nil, err
		}
		if err := unmarshalState(after.String, &a.After); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// --- jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	counts, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job counts")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, counts, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), string(counts), job.Error, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	counts, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job counts")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, counts = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), string(counts), job.Error, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var counts string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, counts, error, created_at, updated_at FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Status, &counts, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	if err := json.Unmarshal([]byte(counts), &j.Counts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job counts")
	}
	return &j, nil
}

// --- enrichment cache ---

func (s *SQLiteStore) GetCachedEnrichment(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM enrichment_cache WHERE cache_key = ? AND expires_at > ?`,
		key, s.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, eris.Wrap(err, "sqlite: get cached enrichment")
}

func (s *SQLiteStore) SetCachedEnrichment(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now, now.Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: set cached enrichment")
}

func (s *SQLiteStore) DeleteCachedEnrichment(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_cache WHERE cache_key = ?`, key)
	return eris.Wrap(err, "sqlite: delete cached enrichment")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanProduct decodes a product row. The review_status column is
// authoritative; the JSON document holds the status at creation.
func scanProduct(row scannable) (*model.ProductSpecification, error) {
	var data []byte
	var status string
	if err := row.Scan(&data, &status); err != nil {
		return nil, err
	}
	var p model.ProductSpecification
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal product")
	}
	p.ReviewStatus = model.ReviewStatus(status)
	return &p, nil
}

func marshalStates(a model.AuditEntry) (before, after []byte, err error) {
	if a.Before != nil {
		if before, err = json.Marshal(a.Before); err != nil {
			return nil, nil, err
		}
	}
	if a.After != nil {
		if after, err = json.Marshal(a.After); err != nil {
			return nil, nil, err
		}
	}
	return before, after, nil
}

func nullText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func unmarshalState(raw string, dst *map[string]any) error {
	if raw == "" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(raw), dst), "store: unmarshal audit state")
}
