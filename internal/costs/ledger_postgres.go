package costs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/crypto"
	"signalhub/internal/domain"
)

// PostgresLedger persists ModelUsage records to a `model_usage` table.
// UserID is optionally encrypted at rest via a FieldCipher.
type PostgresLedger struct {
	db        *sql.DB
	calc      *Calculator
	risk      *RiskScorer
	encryptor *crypto.FieldCipher // nil when encryption is disabled
}

// NewPostgresLedger builds a PostgresLedger. encryptor may be nil.
func NewPostgresLedger(db *sql.DB, calc *Calculator, risk *RiskScorer, encryptor *crypto.FieldCipher) *PostgresLedger {
	return &PostgresLedger{db: db, calc: calc, risk: risk, encryptor: encryptor}
}

func (l *PostgresLedger) encodeUserID(userID string) (string, error) {
	if l.encryptor == nil || userID == "" {
		return userID, nil
	}
	return l.encryptor.Encrypt(userID)
}

func (l *PostgresLedger) decodeUserID(stored string) (string, error) {
	if l.encryptor == nil || stored == "" {
		return stored, nil
	}
	return l.encryptor.Decrypt(stored)
}

func (l *PostgresLedger) Append(ctx context.Context, usage domain.ModelUsage) (err error) {
	defer func() { recordAppend(err) }()

	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	userID, err := l.encodeUserID(usage.UserID)
	if err != nil {
		return domain.NewError(domain.KindTransient, "ledger.Append", fmt.Errorf("encrypt user id: %w", err))
	}
	metadata, err := json.Marshal(usage.Metadata)
	if err != nil {
		return domain.NewError(domain.KindInvalidInput, "ledger.Append", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO model_usage
			(id, ts, model_id, input_tokens, output_tokens, cost_usd, routing_reason,
			 cache_hit, latency_ms, tool_name, user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, usage.ID, usage.Timestamp, string(usage.ModelID), usage.InputTokens, usage.OutputTokens,
		usage.CostUSD, usage.RoutingReason, usage.CacheHit, usage.LatencyMs, usage.ToolName,
		userID, metadata)
	if err != nil {
		return domain.NewError(domain.KindTransient, "ledger.Append", err)
	}
	return nil
}

func (l *PostgresLedger) fetch(ctx context.Context, start, end time.Time, userID string) ([]domain.ModelUsage, error) {
	var rows *sql.Rows
	var err error

	if userID != "" {
		encoded, encErr := l.encodeUserID(userID)
		if encErr != nil {
			return nil, domain.NewError(domain.KindTransient, "ledger.fetch", encErr)
		}
		rows, err = l.db.QueryContext(ctx, `
			SELECT id, ts, model_id, input_tokens, output_tokens, cost_usd, routing_reason,
			       cache_hit, latency_ms, tool_name, user_id, metadata
			FROM model_usage
			WHERE ts >= $1 AND ts < $2 AND user_id = $3
			ORDER BY ts ASC
		`, start, end, encoded)
	} else {
		rows, err = l.db.QueryContext(ctx, `
			SELECT id, ts, model_id, input_tokens, output_tokens, cost_usd, routing_reason,
			       cache_hit, latency_ms, tool_name, user_id, metadata
			FROM model_usage
			WHERE ts >= $1 AND ts < $2
			ORDER BY ts ASC
		`, start, end)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ledger.fetch", err)
	}
	defer rows.Close()

	return l.scanUsageRows(rows)
}

func (l *PostgresLedger) scanUsageRows(rows *sql.Rows) ([]domain.ModelUsage, error) {
	var out []domain.ModelUsage
	for rows.Next() {
		var r domain.ModelUsage
		var modelID, storedUserID string
		var metadata []byte
		if err := rows.Scan(&r.ID, &r.Timestamp, &modelID, &r.InputTokens, &r.OutputTokens,
			&r.CostUSD, &r.RoutingReason, &r.CacheHit, &r.LatencyMs, &r.ToolName,
			&storedUserID, &metadata); err != nil {
			return nil, domain.NewError(domain.KindTransient, "ledger.scan", err)
		}
		r.ModelID = domain.ModelTier(modelID)
		decoded, err := l.decodeUserID(storedUserID)
		if err != nil {
			return nil, domain.NewError(domain.KindTransient, "ledger.scan", fmt.Errorf("decrypt user id: %w", err))
		}
		r.UserID = decoded
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &r.Metadata)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Summary(ctx context.Context, start, end time.Time, userID string) (domain.CostSummary, error) {
	records, err := l.fetch(ctx, start, end, userID)
	if err != nil {
		return domain.CostSummary{}, err
	}
	return summarize(records, start, end, l.calc, l.risk), nil
}

func (l *PostgresLedger) Range(ctx context.Context, start, end time.Time, userID string) ([]domain.ModelUsage, error) {
	return l.fetch(ctx, start, end, userID)
}

func (l *PostgresLedger) Recent(ctx context.Context, limit int, userID string) ([]domain.ModelUsage, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if userID != "" {
		encoded, encErr := l.encodeUserID(userID)
		if encErr != nil {
			return nil, domain.NewError(domain.KindTransient, "ledger.Recent", encErr)
		}
		rows, err = l.db.QueryContext(ctx, `
			SELECT id, ts, model_id, input_tokens, output_tokens, cost_usd, routing_reason,
			       cache_hit, latency_ms, tool_name, user_id, metadata
			FROM model_usage
			WHERE user_id = $1
			ORDER BY ts DESC
			LIMIT $2
		`, encoded, limit)
	} else {
		rows, err = l.db.QueryContext(ctx, `
			SELECT id, ts, model_id, input_tokens, output_tokens, cost_usd, routing_reason,
			       cache_hit, latency_ms, tool_name, user_id, metadata
			FROM model_usage
			ORDER BY ts DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ledger.Recent", err)
	}
	defer rows.Close()

	return l.scanUsageRows(rows)
}

func (l *PostgresLedger) TotalCost(ctx context.Context, start, end time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(cost_usd), 0) FROM model_usage WHERE TRUE`
	args := make([]any, 0, 2)
	if !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(" AND ts < $%d", len(args))
	}

	var total float64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, domain.NewError(domain.KindTransient, "ledger.TotalCost", err)
	}
	return total, nil
}

func (l *PostgresLedger) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM model_usage WHERE ts < $1`, olderThan)
	if err != nil {
		return 0, domain.NewError(domain.KindTransient, "ledger.Prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewError(domain.KindTransient, "ledger.Prune", err)
	}
	return n, nil
}
