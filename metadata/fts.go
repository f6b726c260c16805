package metadata

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// FTS5 index over virtual paths and names, kept in sync with the file table
// by triggers. Rowids mirror file ids so search joins back to full rows.
const (
	ftsCreate = `
		CREATE VIRTUAL TABLE IF NOT EXISTS file_fts USING fts5(
			virtual_path,
			original_name
		)`
	ftsInsertTrigger = `
		CREATE TRIGGER IF NOT EXISTS file_fts_insert AFTER INSERT ON file BEGIN
			INSERT INTO file_fts(rowid, virtual_path, original_name)
			VALUES (new.id, new.virtual_path, new.original_name);
		END`
	ftsDeleteTrigger = `
		CREATE TRIGGER IF NOT EXISTS file_fts_delete AFTER DELETE ON file BEGIN
			DELETE FROM file_fts WHERE rowid = old.id;
		END`
	ftsUpdateTrigger = `
		CREATE TRIGGER IF NOT EXISTS file_fts_update AFTER UPDATE ON file BEGIN
			DELETE FROM file_fts WHERE rowid = old.id;
			INSERT INTO file_fts(rowid, virtual_path, original_name)
			VALUES (new.id, new.virtual_path, new.original_name);
		END`
)

func initFTS(cli *gorm.DB) error {
	for _, stmt := range []string{ftsCreate, ftsInsertTrigger, ftsDeleteTrigger, ftsUpdateTrigger} {
		if err := cli.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SearchFiles narrows candidate files through the full-text index over
// virtual paths and original names. Falls back to a LIKE scan if the FTS
// query cannot be executed (e.g. tokens the tokenizer rejects).
func (d *Database) SearchFiles(ctx context.Context, query string, limit int) ([]File, error) {
	match := ftsMatchExpression(query)
	if match == "" {
		return nil, nil
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	files := []File{}
	q := d.Cli.WithContext(ctx).Model(&File{}).
		Select("file.*").
		Joins("JOIN file_fts ON file_fts.rowid = file.id").
		Where("file_fts MATCH ?", match).
		Order("file.virtual_path")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&files).Error; err != nil {
		d.Logger.Debug().Err(err).Str("query", query).Msg("full-text lookup failed, falling back to LIKE scan")
		return d.searchFilesLike(ctx, query, limit)
	}
	return files, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (d *Database) searchFilesLike(ctx context.Context, query string, limit int) ([]File, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"

	files := []File{}
	q := d.Cli.WithContext(ctx).
		Where("virtual_path LIKE ? ESCAPE '\\' OR original_name LIKE ? ESCAPE '\\'", pattern, pattern).
		Order("virtual_path")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("could not search files: %w", err)
	}
	return files, nil
}

// ftsMatchExpression quotes each token so user input cannot inject FTS
// operators. Tokens are AND-combined, FTS5's default.
func ftsMatchExpression(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(token, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
