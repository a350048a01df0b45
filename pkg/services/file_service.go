package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// FileService stores parsed documents attached to a session. Documents are
// parsed upstream; this service only records text and structure.
type FileService struct {
	db    *sql.DB
	cache *cache.Client
	ttl   time.Duration
}

// NewFileService creates a FileService. ttl matches the session TTL so the
// cached file list dies with the session keys.
func NewFileService(db *sql.DB, cache *cache.Client, ttl time.Duration) *FileService {
	return &FileService{db: db, cache: cache, ttl: ttl}
}

// Add attaches files to a session in one transaction. Position continues
// after already-stored files; token estimates are computed here when the
// caller left them zero.
func (f *FileService) Add(ctx context.Context, sessionID string, files []*models.File) ([]*models.File, error) {
	if len(files) == 0 {
		return nil, NewValidationError("files", "at least one file is required")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var base int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM files WHERE session_id = $1`,
		sessionID,
	).Scan(&base); err != nil {
		return nil, fmt.Errorf("failed to count session files: %w", err)
	}

	now := time.Now().UTC()
	for i, file := range files {
		if file.OriginalName == "" {
			return nil, NewValidationError("files", "file %d has no name", i)
		}
		file.ID = uuid.New().String()
		file.SessionID = sessionID
		file.Position = base + i
		file.CreatedAt = now
		if file.TokenEstimate == 0 {
			file.TokenEstimate = EstimateTokens(file.PlainText)
		}

		sectionsJSON, err := marshalSliceNullable(file.Sections)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sections: %w", err)
		}
		tablesJSON, err := marshalSliceNullable(file.Tables)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tables: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (id, session_id, original_name, mime_type, size,
			                    plain_text, sections, tables, token_estimate, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			file.ID, file.SessionID, file.OriginalName, nullString(file.MimeType),
			file.Size, file.PlainText, sectionsJSON, tablesJSON,
			file.TokenEstimate, file.Position, file.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert file %s: %w", file.OriginalName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit files: %w", err)
	}

	if err := f.recache(ctx, sessionID); err != nil {
		slog.Warn("Failed to recache file list", "session_id", sessionID, "error", err)
	}

	slog.Info("Files stored", "session_id", sessionID, "count", len(files))
	return files, nil
}

// List returns the session's files ordered by position, hot tier first.
func (f *FileService) List(ctx context.Context, sessionID string) ([]*models.File, error) {
	var files []*models.File
	err := f.cache.GetJSON(ctx, cache.SessionFilesKey(sessionID), &files)
	if err == nil {
		return files, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("Hot-tier file list read failed", "session_id", sessionID, "error", err)
	}

	files, err = f.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := f.cache.SetJSON(ctx, cache.SessionFilesKey(sessionID), files, f.ttl); err != nil {
		slog.Warn("Failed to cache file list", "session_id", sessionID, "error", err)
	}
	return files, nil
}

// Get returns one file of a session.
func (f *FileService) Get(ctx context.Context, sessionID, fileID string) (*models.File, error) {
	files, err := f.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.ID == fileID {
			return file, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
}

func (f *FileService) recache(ctx context.Context, sessionID string) error {
	files, err := f.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return f.cache.SetJSON(ctx, cache.SessionFilesKey(sessionID), files, f.ttl)
}

func (f *FileService) load(ctx context.Context, sessionID string) ([]*models.File, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id, session_id, original_name, mime_type, size, plain_text,
		        sections, tables, token_estimate, position, created_at
		 FROM files WHERE session_id = $1 ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := []*models.File{}
	for rows.Next() {
		file := &models.File{}
		var mimeType sql.NullString
		var sectionsJSON, tablesJSON []byte
		err := rows.Scan(&file.ID, &file.SessionID, &file.OriginalName, &mimeType,
			&file.Size, &file.PlainText, &sectionsJSON, &tablesJSON,
			&file.TokenEstimate, &file.Position, &file.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		file.MimeType = mimeType.String
		if len(sectionsJSON) > 0 {
			if err := json.Unmarshal(sectionsJSON, &file.Sections); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
			}
		}
		if len(tablesJSON) > 0 {
			if err := json.Unmarshal(tablesJSON, &file.Tables); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tables: %w", err)
			}
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// EstimateTokens approximates the token count of text as ceil(len/4).
// Good enough for chunking decisions; the providers do the real counting.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func marshalSliceNullable[T any](s []T) (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return data, nil
}
