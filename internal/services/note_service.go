package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/keeper-notes-be/internal/apperr"
	"github.com/isdelr/keeper-notes-be/internal/cache"
	"github.com/isdelr/keeper-notes-be/internal/database"
	"github.com/isdelr/keeper-notes-be/internal/models"
	"github.com/rs/zerolog"
)

const (
	msgNoteNotFound        = "Note not found"
	msgNoteContentRequired = "title or content is required"
)

const noteColumns = `id, user_id, title, content, images_json, labels_json, created_at, updated_at`

// NoteServiceProvider defines the interface for note services. Every
// operation is scoped to the calling account.
type NoteServiceProvider interface {
	ListNotes(ctx context.Context, accountID string) ([]models.Note, error)
	CreateNote(ctx context.Context, accountID string, in models.NoteInput) (models.Note, error)
	UpdateNote(ctx context.Context, accountID string, noteID int64, in models.NoteInput) (models.Note, error)
	DeleteNote(ctx context.Context, accountID string, noteID int64) error
}

// NoteService provides business logic for notes.
type NoteService struct {
	db    *database.DB
	cache cache.NoteCache
	now   func() time.Time
}

// NewNoteService creates a new NoteService. A nil cache disables caching.
func NewNoteService(db *database.DB, noteCache cache.NoteCache) *NoteService {
	if noteCache == nil {
		noteCache = cache.Nop{}
	}
	return &NoteService{db: db, cache: noteCache, now: time.Now}
}

// ListNotes returns all notes of accountID, newest first.
func (s *NoteService) ListNotes(ctx context.Context, accountID string) ([]models.Note, error) {
	logger := zerolog.Ctx(ctx)

	cached, ok, err := s.cache.GetNotes(ctx, accountID)
	if err != nil {
		logger.Warn().Err(err).Str("account_id", accountID).Msg("Note cache read failed, falling back to database")
	} else if ok {
		return cached, nil
	}

	// Taken before the query so a fill racing with an invalidation is dropped.
	generation, genErr := s.cache.Generation(ctx, accountID)
	if genErr != nil {
		logger.Warn().Err(genErr).Str("account_id", accountID).Msg("Note cache generation read failed")
	}

	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	if genErr == nil {
		if err := s.cache.SetNotes(ctx, accountID, generation, notes); err != nil {
			logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to populate note cache")
		}
	}
	return notes, nil
}

// CreateNote stores a new note owned by accountID. Empty title or content
// is stored as null; at least one of them must remain.
func (s *NoteService) CreateNote(ctx context.Context, accountID string, in models.NoteInput) (models.Note, error) {
	title, content := nonEmpty(in.Title), nonEmpty(in.Content)
	if title == nil && content == nil {
		return models.Note{}, apperr.Validation(msgNoteContentRequired)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	note := models.Note{
		UserID:    accountID,
		Title:     title,
		Content:   content,
		Images:    in.Images,
		Labels:    models.NormalizeLabels(in.Labels),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := note.PrepareForSave(); err != nil {
		return models.Note{}, fmt.Errorf("failed to encode note: %w", err)
	}

	const query = `INSERT INTO notes (user_id, title, content, images_json, labels_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query),
		note.UserID, nullable(note.Title), nullable(note.Content), note.ImagesJSON, note.LabelsJSON, note.CreatedAt, note.UpdatedAt,
	).Scan(&note.ID)
	if err != nil {
		return models.Note{}, fmt.Errorf("failed to insert note: %w", err)
	}
	s.invalidate(ctx, accountID)

	if err := note.PrepareForAPI(); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// UpdateNote applies the provided fields of in to the note and bumps
// updated_at. Fields left nil keep their stored value.
func (s *NoteService) UpdateNote(ctx context.Context, accountID string, noteID int64, in models.NoteInput) (models.Note, error) {
	var images, labels any
	if in.Images != nil {
		encoded, err := models.EncodeStrings(in.Images)
		if err != nil {
			return models.Note{}, fmt.Errorf("failed to encode images: %w", err)
		}
		images = encoded
	}
	if in.Labels != nil {
		encoded, err := models.EncodeStrings(models.NormalizeLabels(in.Labels))
		if err != nil {
			return models.Note{}, fmt.Errorf("failed to encode labels: %w", err)
		}
		labels = encoded
	}

	var updated models.Note
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		var previous time.Time
		err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT updated_at FROM notes WHERE id = ? AND user_id = ?`),
			noteID, accountID).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound(msgNoteNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load note %d: %w", noteID, err)
		}

		// updated_at must move forward even when two writes share a clock tick.
		stamp := s.now().UTC().Truncate(time.Microsecond)
		if !stamp.After(previous) {
			stamp = previous.UTC().Add(time.Microsecond)
		}

		const query = `UPDATE notes SET
			title = COALESCE(?, title),
			content = COALESCE(?, content),
			images_json = COALESCE(?, images_json),
			labels_json = COALESCE(?, labels_json),
			updated_at = ?
			WHERE id = ? AND user_id = ?`
		res, err := tx.ExecContext(ctx, s.db.Rebind(query),
			nullable(in.Title), nullable(in.Content), images, labels, stamp, noteID, accountID)
		if err != nil {
			return fmt.Errorf("failed to update note %d: %w", noteID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to update note %d: %w", noteID, err)
		} else if n == 0 {
			return apperr.NotFound(msgNoteNotFound)
		}

		row := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`),
			noteID, accountID)
		updated, err = scanNote(row)
		return err
	})
	if err != nil {
		return models.Note{}, err
	}
	s.invalidate(ctx, accountID)
	return updated, nil
}

// DeleteNote removes the note if accountID owns it.
func (s *NoteService) DeleteNote(ctx context.Context, accountID string, noteID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM notes WHERE id = ? AND user_id = ?`), noteID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete note %d: %w", noteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete note %d: %w", noteID, err)
	}
	if n == 0 {
		return apperr.NotFound(msgNoteNotFound)
	}
	s.invalidate(ctx, accountID)
	return nil
}

func (s *NoteService) invalidate(ctx context.Context, accountID string) {
	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("account_id", accountID).Msg("Failed to invalidate note cache")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (models.Note, error) {
	var (
		note           models.Note
		title, content sql.NullString
	)
	err := row.Scan(&note.ID, &note.UserID, &title, &content, &note.ImagesJSON, &note.LabelsJSON,
		&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("failed to scan note: %w", err)
	}
	if title.Valid {
		note.Title = &title.String
	}
	if content.Valid {
		note.Content = &content.String
	}
	note.CreatedAt, note.UpdatedAt = note.CreatedAt.UTC(), note.UpdatedAt.UTC()
	if err := note.PrepareForAPI(); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// nullable binds a nil pointer as NULL and anything else as its value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
