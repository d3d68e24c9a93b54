// internal/store/themes.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/winstonapp/themestore/internal/models"
)

const themeColumns = `file_name, file_id, theme_name, theme_author, theme_description,
	message_id, approval_state, color, alpha, icon`

// UpsertTheme creates or updates the record for meta's file_id. The operation
// is idempotent: issuing the same payload twice leaves one row with the
// latest values.
func (db *DB) UpsertTheme(ctx context.Context, meta models.SavableMetadata) error {
	if !meta.ApprovalState.Valid() {
		return fmt.Errorf("invalid approval state: %q", meta.ApprovalState)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO themes (`+themeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			file_name = excluded.file_name,
			theme_name = excluded.theme_name,
			theme_author = excluded.theme_author,
			theme_description = excluded.theme_description,
			message_id = excluded.message_id,
			approval_state = excluded.approval_state,
			color = excluded.color,
			alpha = excluded.alpha,
			icon = excluded.icon,
			updated_at = CURRENT_TIMESTAMP`,
		meta.FileName,
		meta.FileID,
		meta.ThemeName,
		meta.ThemeAuthor,
		meta.ThemeDescription,
		nullableString(meta.MessageID),
		string(meta.ApprovalState),
		meta.Color,
		meta.Alpha,
		meta.Icon,
	)
	if err != nil {
		return fmt.Errorf("upsert theme %s: %w", meta.FileID, err)
	}
	return nil
}

// GetThemeByID returns the record for the given identity, or (nil, nil) when
// none exists.
func (db *DB) GetThemeByID(ctx context.Context, fileID string) (*models.SavableMetadata, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+themeColumns+` FROM themes WHERE file_id = ?`, fileID)
	return scanTheme(row)
}

// GetThemeByMessageID returns the record holding the given external reference
// id, or (nil, nil).
func (db *DB) GetThemeByMessageID(ctx context.Context, messageID string) (*models.SavableMetadata, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+themeColumns+` FROM themes WHERE message_id = ?`, messageID)
	return scanTheme(row)
}

// SearchThemesByName returns themes whose name contains the given substring.
func (db *DB) SearchThemesByName(ctx context.Context, name string) ([]models.SavableMetadata, error) {
	pattern := "%" + escapeLike(name) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT `+themeColumns+` FROM themes
		WHERE theme_name LIKE ? ESCAPE '\'
		ORDER BY theme_name`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search themes by name: %w", err)
	}
	return collectThemes(rows)
}

// ListAcceptedThemes pages through accepted themes.
func (db *DB) ListAcceptedThemes(ctx context.Context, limit, offset int) ([]models.SavableMetadata, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+themeColumns+` FROM themes
		WHERE approval_state = ?
		ORDER BY id
		LIMIT ? OFFSET ?`, string(models.ApprovalAccepted), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accepted themes: %w", err)
	}
	return collectThemes(rows)
}

// DeleteThemeByID removes the record for the given identity and reports
// whether a row was deleted.
func (db *DB) DeleteThemeByID(ctx context.Context, fileID string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM themes WHERE file_id = ?`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete theme %s: %w", fileID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete theme %s: %w", fileID, err)
	}
	return deleted > 0, nil
}

// ThemeUpdate is a partial update; nil fields are left unchanged. Identity
// (file_id) is immutable and cannot appear here.
type ThemeUpdate struct {
	FileName         *string
	ThemeName        *string
	ThemeAuthor      *string
	ThemeDescription *string
	MessageID        *string
	ApprovalState    *models.ApprovalState
	Color            *string
	Alpha            *float64
	Icon             *string
}

// UpdateThemeFields applies the non-nil fields of update to the record for
// the given identity and reports whether a row was changed.
func (db *DB) UpdateThemeFields(ctx context.Context, fileID string, update ThemeUpdate) (bool, error) {
	assignments := []string{}
	args := []any{}

	set := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		args = append(args, value)
	}

	if update.FileName != nil {
		set("file_name", *update.FileName)
	}
	if update.ThemeName != nil {
		set("theme_name", *update.ThemeName)
	}
	if update.ThemeAuthor != nil {
		set("theme_author", *update.ThemeAuthor)
	}
	if update.ThemeDescription != nil {
		set("theme_description", *update.ThemeDescription)
	}
	if update.MessageID != nil {
		set("message_id", nullableString(*update.MessageID))
	}
	if update.ApprovalState != nil {
		if !update.ApprovalState.Valid() {
			return false, fmt.Errorf("invalid approval state: %q", *update.ApprovalState)
		}
		set("approval_state", string(*update.ApprovalState))
	}
	if update.Color != nil {
		set("color", *update.Color)
	}
	if update.Alpha != nil {
		set("alpha", *update.Alpha)
	}
	if update.Icon != nil {
		set("icon", *update.Icon)
	}

	if len(assignments) == 0 {
		return false, nil
	}
	assignments = append(assignments, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, fileID)

	result, err := db.ExecContext(ctx,
		"UPDATE themes SET "+strings.Join(assignments, ", ")+" WHERE file_id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("update theme %s: %w", fileID, err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update theme %s: %w", fileID, err)
	}
	return updated > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThemeRow(scanner rowScanner) (models.SavableMetadata, error) {
	var meta models.SavableMetadata
	var messageID sql.NullString
	var state string
	err := scanner.Scan(
		&meta.FileName,
		&meta.FileID,
		&meta.ThemeName,
		&meta.ThemeAuthor,
		&meta.ThemeDescription,
		&messageID,
		&state,
		&meta.Color,
		&meta.Alpha,
		&meta.Icon,
	)
	if err != nil {
		return meta, err
	}
	meta.MessageID = messageID.String
	meta.ApprovalState, err = models.ParseApprovalState(state)
	if err != nil {
		return meta, fmt.Errorf("theme %s: %w", meta.FileID, err)
	}
	return meta, nil
}

func scanTheme(row *sql.Row) (*models.SavableMetadata, error) {
	meta, err := scanThemeRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

func collectThemes(rows *sql.Rows) ([]models.SavableMetadata, error) {
	defer rows.Close()
	themes := []models.SavableMetadata{}
	for rows.Next() {
		meta, err := scanThemeRow(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}
	return themes, nil
}

// nullableString maps "" to NULL so the unique constraint on message_id does
// not collide on records that have no external reference yet.
func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
