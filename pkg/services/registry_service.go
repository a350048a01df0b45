package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// RegistryService maintains the model registry: which models exist on which
// provider, whether they are reachable, and how often they have been used.
// The gateway's selection query lives here.
type RegistryService struct {
	db        *sql.DB
	preferred []string
}

// NewRegistryService creates a RegistryService. preferred lists model names
// that should win selection, best first.
func NewRegistryService(db *sql.DB, preferred []string) *RegistryService {
	return &RegistryService{db: db, preferred: preferred}
}

// Sync upserts the models discovered on a provider and marks models of that
// provider missing from the discovery as unavailable.
func (r *RegistryService) Sync(ctx context.Context, provider string, discovered []models.ModelInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	names := make([]string, 0, len(discovered))
	for _, m := range discovered {
		names = append(names, m.Name)
		priority := m.Priority
		if priority == 0 {
			priority = DerivePriority(m.Name, r.preferred)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO model_registry (name, display_name, provider, size, family,
			                             parameter_size, quantization, is_available,
			                             priority, context_window, max_tokens,
			                             temperature, last_checked)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $10, $11, $12)
			 ON CONFLICT (name) DO UPDATE SET
			     display_name = EXCLUDED.display_name,
			     provider = EXCLUDED.provider,
			     size = EXCLUDED.size,
			     family = EXCLUDED.family,
			     parameter_size = EXCLUDED.parameter_size,
			     quantization = EXCLUDED.quantization,
			     is_available = true,
			     context_window = GREATEST(model_registry.context_window, EXCLUDED.context_window),
			     last_checked = EXCLUDED.last_checked`,
			m.Name, nullString(m.DisplayName), provider, m.Size, nullString(m.Family),
			nullString(m.ParameterSize), nullString(m.Quantization), priority,
			m.ContextWindow, m.MaxTokens, m.Temperature, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert model %s: %w", m.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE model_registry SET is_available = false, last_checked = $2
		 WHERE provider = $1 AND NOT (name = ANY($3))`,
		provider, now, names,
	)
	if err != nil {
		return fmt.Errorf("failed to mark missing models unavailable: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry sync: %w", err)
	}

	slog.Debug("Model registry synced", "provider", provider, "models", len(discovered))
	return nil
}

// Select returns the model to use: available, enabled, lowest priority first,
// most used as the tie-breaker.
func (r *RegistryService) Select(ctx context.Context) (*models.ModelInfo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT name, display_name, provider, size, family, parameter_size,
		        quantization, is_available, is_enabled, priority, context_window,
		        max_tokens, temperature, last_checked, last_used, usage_count
		 FROM model_registry
		 WHERE is_available AND is_enabled
		 ORDER BY priority ASC, usage_count DESC, name ASC
		 LIMIT 1`)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no available model: %w", ErrNotFound)
	}
	return m, err
}

// RecordUsage bumps a model's usage statistics after a successful call.
func (r *RegistryService) RecordUsage(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE model_registry SET usage_count = usage_count + 1, last_used = $2
		 WHERE name = $1`,
		name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record model usage: %w", err)
	}
	return nil
}

// SetEnabled flips a model's enabled flag (operator control).
func (r *RegistryService) SetEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE model_registry SET is_enabled = $2 WHERE name = $1`, name, enabled)
	if err != nil {
		return fmt.Errorf("failed to update model flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("model %s: %w", name, ErrNotFound)
	}
	return nil
}

// List returns all registry rows for the operator surface.
func (r *RegistryService) List(ctx context.Context) ([]*models.ModelInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, display_name, provider, size, family, parameter_size,
		        quantization, is_available, is_enabled, priority, context_window,
		        max_tokens, temperature, last_checked, last_used, usage_count
		 FROM model_registry ORDER BY priority, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*models.ModelInfo{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

var paramCountRe = regexp.MustCompile(`(\d+)\s*b\b`)

// DerivePriority maps a model name to a selection priority: preferred models
// get their list index (best first), very large variants are pushed to the
// back, everything else sits at 100.
func DerivePriority(name string, preferred []string) int {
	lower := strings.ToLower(name)
	for i, p := range preferred {
		if lower == strings.ToLower(p) || strings.HasPrefix(lower, strings.ToLower(p)) {
			return i + 1
		}
	}
	if m := paramCountRe.FindStringSubmatch(lower); m != nil {
		if params, err := strconv.Atoi(m[1]); err == nil && params >= 70 {
			return 200
		}
	}
	return 100
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*models.ModelInfo, error) {
	m := &models.ModelInfo{}
	var displayName, family, paramSize, quant sql.NullString
	var lastChecked, lastUsed sql.NullTime
	err := row.Scan(&m.Name, &displayName, &m.Provider, &m.Size, &family,
		&paramSize, &quant, &m.Available, &m.Enabled, &m.Priority,
		&m.ContextWindow, &m.MaxTokens, &m.Temperature,
		&lastChecked, &lastUsed, &m.UsageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan model row: %w", err)
	}
	m.DisplayName = displayName.String
	m.Family = family.String
	m.ParameterSize = paramSize.String
	m.Quantization = quant.String
	if lastChecked.Valid {
		t := lastChecked.Time
		m.LastChecked = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		m.LastUsed = &t
	}
	return m, nil
}
