package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"signalhub/internal/domain"
)

// PostgresStorage persists cached responses to a `cache_entries` table with
// a pgvector column, using the `<=>` cosine-distance operator for search.
type PostgresStorage struct {
	db         *sql.DB
	maxEntries int
}

// NewPostgresStorage builds a PostgresStorage over an open *sql.DB,
// holding at most maxEntries entries. A maxEntries <= 0 leaves the
// backend unbounded.
func NewPostgresStorage(db *sql.DB, maxEntries int) *PostgresStorage {
	return &PostgresStorage{db: db, maxEntries: maxEntries}
}

func (s *PostgresStorage) Add(ctx context.Context, entry domain.CachedResponse) (domain.CachedResponse, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.StatusActive
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	ctxJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return domain.CachedResponse{}, domain.NewError(domain.KindInvalidInput, "storage.Add", err)
	}

	// The capacity check is part of the insert statement so a full table
	// rejects new rows atomically; replacing an existing id is always
	// allowed, and a non-positive max disables the check.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries
			(id, query_text, query_embedding, response_payload, model_id, created_at,
			 ttl_seconds, hit_count, context, status)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE $11 <= 0
		   OR EXISTS (SELECT 1 FROM cache_entries WHERE id = $1)
		   OR (SELECT COUNT(*) FROM cache_entries) < $11
		ON CONFLICT (id) DO UPDATE SET
			response_payload = EXCLUDED.response_payload,
			status = EXCLUDED.status
	`, entry.ID, entry.QueryText, pgvector.NewVector(entry.QueryEmbedding), entry.ResponsePayload,
		string(entry.ModelID), entry.CreatedAt, entry.TTLSeconds, entry.HitCount, ctxJSON, string(entry.Status),
		s.maxEntries)
	if err != nil {
		return domain.CachedResponse{}, domain.NewError(domain.KindTransient, "storage.Add", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.CachedResponse{}, domain.NewError(domain.KindCapacity, "storage.Add", errCacheFull)
	}
	return entry, nil
}

func (s *PostgresStorage) Search(ctx context.Context, query []float32, reqContext map[string]string, threshold float64, limit int) ([]domain.CacheSearchResult, error) {
	// 1 - cosine_distance = cosine_similarity; pgvector's <=> operator
	// returns cosine distance.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_text, query_embedding, response_payload, model_id, created_at,
		       ttl_seconds, hit_count, last_accessed, context, status,
		       1 - (query_embedding <=> $1) AS similarity
		FROM cache_entries
		WHERE status = 'ACTIVE'
		  AND created_at + (ttl_seconds * interval '1 second') > now()
		  AND 1 - (query_embedding <=> $1) >= $2
		ORDER BY similarity DESC
		LIMIT $3
	`, pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "storage.Search", err)
	}
	defer rows.Close()

	var out []domain.CacheSearchResult
	for rows.Next() {
		entry, similarity, err := scanEntry(rows)
		if err != nil {
			return nil, domain.NewError(domain.KindTransient, "storage.Search", err)
		}
		if !ContextCompatible(entry.Context, reqContext) {
			continue
		}
		out = append(out, domain.CacheSearchResult{Entry: entry, Similarity: similarity})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.CachedResponse, float64, error) {
	var e domain.CachedResponse
	var modelID, status string
	var embedding pgvector.Vector
	var ctxJSON []byte
	var lastAccessed sql.NullTime
	var similarity float64

	err := row.Scan(&e.ID, &e.QueryText, &embedding, &e.ResponsePayload, &modelID, &e.CreatedAt,
		&e.TTLSeconds, &e.HitCount, &lastAccessed, &ctxJSON, &status, &similarity)
	if err != nil {
		return domain.CachedResponse{}, 0, err
	}
	e.ModelID = domain.ModelTier(modelID)
	e.Status = domain.CacheEntryStatus(status)
	e.QueryEmbedding = embedding.Slice()
	if lastAccessed.Valid {
		e.LastAccessed = &lastAccessed.Time
	}
	if len(ctxJSON) > 0 {
		_ = json.Unmarshal(ctxJSON, &e.Context)
	}
	return e, similarity, nil
}

func (s *PostgresStorage) Get(ctx context.Context, id string) (domain.CachedResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_text, query_embedding, response_payload, model_id, created_at,
		       ttl_seconds, hit_count, last_accessed, context, status, 0
		FROM cache_entries WHERE id = $1
	`, id)
	entry, _, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return domain.CachedResponse{}, domain.NewError(domain.KindNotFound, "storage.Get", err)
	}
	if err != nil {
		return domain.CachedResponse{}, domain.NewError(domain.KindTransient, "storage.Get", err)
	}
	return entry, nil
}

func (s *PostgresStorage) Update(ctx context.Context, entry domain.CachedResponse) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET hit_count = $2, last_accessed = $3, status = $4
		WHERE id = $1
	`, entry.ID, entry.HitCount, entry.LastAccessed, string(entry.Status))
	if err != nil {
		return domain.NewError(domain.KindTransient, "storage.Update", err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE id = $1`, id)
	if err != nil {
		return domain.NewError(domain.KindTransient, "storage.Delete", err)
	}
	return nil
}

func (s *PostgresStorage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE cache_entries`)
	if err != nil {
		return domain.NewError(domain.KindTransient, "storage.Clear", err)
	}
	return nil
}

func (s *PostgresStorage) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	if err != nil {
		return 0, domain.NewError(domain.KindTransient, "storage.Size", err)
	}
	return n, nil
}

func (s *PostgresStorage) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE' AND created_at + (ttl_seconds * interval '1 second') > now()),
			COUNT(*) FILTER (WHERE status = 'EXPIRED' OR created_at + (ttl_seconds * interval '1 second') <= now()),
			COUNT(*) FILTER (WHERE status = 'EVICTED'),
			COALESCE(SUM(octet_length(response_payload)), 0)
		FROM cache_entries
	`).Scan(&stats.EntryCount, &stats.ActiveCount, &stats.ExpiredCount, &stats.EvictedCount, &stats.EstimatedSize)
	if err != nil {
		return Stats{}, domain.NewError(domain.KindTransient, "storage.Stats", err)
	}
	return stats, nil
}

func (s *PostgresStorage) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET status = 'EXPIRED'
		WHERE status = 'ACTIVE' AND created_at + (ttl_seconds * interval '1 second') <= now()
	`)
	if err != nil {
		return 0, domain.NewError(domain.KindTransient, "storage.CleanupExpired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewError(domain.KindTransient, "storage.CleanupExpired", err)
	}
	return n, nil
}

func (s *PostgresStorage) All(ctx context.Context) ([]domain.CachedResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_text, query_embedding, response_payload, model_id, created_at,
		       ttl_seconds, hit_count, last_accessed, context, status, 0
		FROM cache_entries
	`)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "storage.All", err)
	}
	defer rows.Close()

	var out []domain.CachedResponse
	for rows.Next() {
		entry, _, err := scanEntry(rows)
		if err != nil {
			return nil, domain.NewError(domain.KindTransient, "storage.All", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
