package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/db"
	"github.com/sells-group/pricelist-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS base_models (
	id                 TEXT PRIMARY KEY,
	brand              TEXT NOT NULL,
	brand_key          TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	model_name         TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL DEFAULT 'catalog',
	extraction_quality DOUBLE PRECISION NOT NULL DEFAULT 0,
	specifications     JSONB NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	line_index         INTEGER NOT NULL,
	model_code         TEXT NOT NULL,
	brand              TEXT NOT NULL,
	brand_key          TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	base_model_id      TEXT NOT NULL,
	price              DOUBLE PRECISION NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	confidence_level   TEXT NOT NULL,
	requires_review    BOOLEAN NOT NULL,
	review_status      TEXT NOT NULL,
	data               JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL REFERENCES products(id),
	seq               INTEGER NOT NULL,
	stage             TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL,
	before_state      JSONB,
	after_state       JSONB,
	confidence_change DOUBLE PRECISION NOT NULL DEFAULT 0,
	actor             TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	counts     JSONB NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_base_models_brand_year ON base_models(brand_key, model_year);
CREATE INDEX IF NOT EXISTS idx_products_level ON products(confidence_level);
CREATE INDEX IF NOT EXISTS idx_products_review ON products(review_status);
CREATE INDEX IF NOT EXISTS idx_audit_product ON audit_entries(product_id, seq);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

var (
	baseModelColumns = []string{
		"id", "brand", "brand_key", "model_year", "model_name", "category",
		"source", "extraction_quality", "specifications", "updated_at",
	}
	auditColumns = []string{
		"id", "product_id", "seq", "stage", "action", "before_state",
		"after_state", "confidence_change", "actor", "created_at",
	}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- catalog ---

func (s *PostgresStore) SaveBaseModels(ctx context.Context, models []model.BaseModelSpecification) (int, error) {
	now := s.now().UTC()
	rows := make([][]any, 0, len(models))
	for _, m := range models {
		specs, err := json.Marshal(m.Specifications)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal specifications %s", m.ID)
		}
		source := m.Source
		if source == "" {
			source = model.SourceCatalog
		}
		rows = append(rows, []any{
			m.ID, m.Brand, model.BrandKey(m.Brand), m.ModelYear, m.ModelName, m.Category,
			string(source), m.ExtractionQuality, specs, now,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save base models")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.BulkUpsert(ctx, tx, db.UpsertConfig{
		Table:        "base_models",
		Columns:      baseModelColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save base models")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit base models")
	}
	return int(n), nil
}

func (s *PostgresStore) ListBaseModels(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand, model_year, model_name, category, source, extraction_quality, specifications
		 FROM base_models WHERE brand_key = $1 AND model_year = $2 ORDER BY id`,
		model.BrandKey(brand), year,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list base models")
	}
	defer rows.Close()

	var out []model.BaseModelSpecification
	for rows.Next() {
		var m model.BaseModelSpecification
		var source string
		var specs []byte
		if err := rows.Scan(&m.ID, &m.Brand, &m.ModelYear, &m.ModelName, &m.Category, &source, &m.ExtractionQuality, &specs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan base model")
		}
		m.Source = model.BaseModelSource(source)
		if err := json.Unmarshal(specs, &m.Specifications); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal specifications %s", m.ID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list base models iterate")
}

// --- products ---

func (s *PostgresStore) SaveProduct(ctx context.Context, p *model.ProductSpecification, audit []model.AuditEntry) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal product")
	}
	auditRows, err := auditRows(audit, 0)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save product")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO products (id, line_index, model_code, brand, brand_key, model_year, base_model_id, price,
		   overall_confidence, confidence_level, requires_review, review_status, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.LineIndex, p.ModelCode, p.Brand, model.BrandKey(p.Brand), p.ModelYear, p.BaseModelID, p.Price,
		p.OverallConfidence, string(p.ConfidenceLevel), p.RequiresReview, string(p.ReviewStatus), data,
		p.CreatedAt, s.now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert product %s", p.ID)
	}
	if _, err := db.CopyFrom(ctx, tx, "audit_entries", auditColumns, auditRows); err != nil {
		return eris.Wrapf(err, "postgres: insert audit for %s", p.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit product")
}

func auditRows(audit []model.AuditEntry, seq int) ([][]any, error) {
	rows := make([][]any, 0, len(audit))
	for i, a := range audit {
		before, after, err := marshalStates(a)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal audit entry")
		}
		rows = append(rows, []any{
			a.ID, a.ProductID, seq + i, string(a.Stage), a.Action,
			before, after, a.ConfidenceChange, a.Actor, a.Timestamp,
		})
	}
	return rows, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.ProductSpecification, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT data, review_status FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: product %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]model.ProductSpecification, error) {
	query := `SELECT data, review_status FROM products WHERE true`
	args := []any{}
	argIdx := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if f.Brand != "" {
		add(` AND brand_key = $%d`, model.BrandKey(f.Brand))
	}
	if f.ModelYear > 0 {
		add(` AND model_year = $%d`, f.ModelYear)
	}
	if f.Level != "" {
		add(` AND confidence_level = $%d`, string(f.Level))
	}
	if f.ReviewStatus != "" {
		add(` AND review_status = $%d`, string(f.ReviewStatus))
	}
	if f.RequiresReview != nil {
		add(` AND requires_review = $%d`, *f.RequiresReview)
	}
	query += ` ORDER BY created_at DESC, line_index`
	add(` LIMIT $%d`, listLimit(f.Limit))
	if f.Offset > 0 {
		add(` OFFSET $%d`, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var out []model.ProductSpecification
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, actor string) error {
	if !status.Valid() {
		return eris.Errorf("postgres: invalid review status %q", status)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin review update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	var seq int
	err = tx.QueryRow(ctx,
		`SELECT p.review_status, (SELECT COUNT(*) FROM audit_entries a WHERE a.product_id = p.id)
		 FROM products p WHERE p.id = $1 FOR UPDATE`,
		id,
	).Scan(&current, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: product %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read review status %s", id)
	}

	now := s.now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE products SET review_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now, id,
	); err != nil {
		return eris.Wrapf(err, "postgres: update review status %s", id)
	}

	entry := reviewEntry(uuid.NewString(), id, model.ReviewStatus(current), status, actor, now)
	before, after, err := marshalStates(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit entry")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_entries (id, product_id, seq, stage, action, before_state, after_state, confidence_change, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, id, seq, "", entry.Action, before, after, 0.0, actor, now,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert review audit %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit review update")
}

func (s *PostgresStore) ListAudit(ctx context.Context, productID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, stage, action, before_state, after_state, confidence_change, actor, created_at
		 FROM audit_entries WHERE product_id = $1 ORDER BY seq`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		var stage string
		var before, after []byte
		if err := rows.Scan(&a.ID, &a.ProductID, &stage, &a.Action, &before, &after, &a.ConfidenceChange, &a.Actor, &a.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		a.Stage = model.StageID(stage)
		if err := unmarshalState(string(before), &a.Before); err != nil {
			return nil, err
		}
		if err := unmarshalState(string(after), &a.After); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

// --- jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	counts, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job counts")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, counts, error, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, string(job.Status), counts, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.Job) error {
	counts, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job counts")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, counts = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(job.Status), counts, job.Error, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var status string
	var counts []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, counts, error, created_at, updated_at FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &status, &counts, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(counts, &j.Counts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job counts")
	}
	return &j, nil
}

// --- enrichment cache ---

func (s *PostgresStore) GetCachedEnrichment(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM enrichment_cache WHERE cache_key = $1 AND expires_at > now()`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached enrichment")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedEnrichment(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (cache_key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached enrichment")
}

func (s *PostgresStore) DeleteCachedEnrichment(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache WHERE cache_key = $1`, key)
	return eris.Wrap(err, "postgres: delete cached enrichment")
}
