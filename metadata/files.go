package metadata

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const iterateBatchSize = 50

// InsertFile records one leaf file. Transactional: a failed insert leaves no
// partially visible row.
func (d *Database) InsertFile(ctx context.Context, file *File) (uint, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Object("file", *file).Msg("would insert file (dry run)")
		return 0, nil
	}

	err := d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(file).Error
	})
	if err != nil {
		return 0, fmt.Errorf("could not insert file %s: %w", file.VirtualPath, err)
	}

	d.Logger.Debug().Object("file", *file).Msg("inserted file")
	return file.ID, nil
}

// InsertFiles records a batch of leaf files in a single transaction, so a
// crash mid-extraction never leaves the unit of work half indexed.
func (d *Database) InsertFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Int("count", len(files)).Msg("would insert files (dry run)")
		return nil
	}

	// Re-imports hit existing virtual paths; those rows are left untouched.
	err := d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, file := range files {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "virtual_path"}},
				DoNothing: true,
			}).Create(file).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not insert file batch: %w", err)
	}

	d.Logger.Debug().Int("count", len(files)).Msg("inserted file batch")
	return nil
}

// GetFileByVirtualPath returns the file at the given virtual path, or nil if
// none is indexed.
func (d *Database) GetFileByVirtualPath(ctx context.Context, virtualPath string) (*File, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	file := &File{}
	err := d.Cli.WithContext(ctx).Where(&File{VirtualPath: virtualPath}).First(file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not look up %s: %w", virtualPath, err)
	}
	return file, nil
}

// GetFileByID returns the file row, or nil if unknown.
func (d *Database) GetFileByID(ctx context.Context, id uint) (*File, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	file := &File{}
	err := d.Cli.WithContext(ctx).First(file, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not look up file %d: %w", id, err)
	}
	return file, nil
}

// GetArchiveChildren returns the direct children of an archive: leaf files
// and nested archives referencing it as parent.
func (d *Database) GetArchiveChildren(ctx context.Context, archiveID uint) ([]File, []Archive, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var files []File
	if err := d.Cli.WithContext(ctx).
		Where("parent_archive_id = ?", archiveID).
		Order("virtual_path").
		Find(&files).Error; err != nil {
		return nil, nil, fmt.Errorf("could not fetch child files of archive %d: %w", archiveID, err)
	}

	var archives []Archive
	if err := d.Cli.WithContext(ctx).
		Where("parent_archive_id = ?", archiveID).
		Order("virtual_path").
		Find(&archives).Error; err != nil {
		return nil, nil, fmt.Errorf("could not fetch child archives of archive %d: %w", archiveID, err)
	}

	return files, archives, nil
}

// CountFiles returns the number of indexed leaf files.
func (d *Database) CountFiles(ctx context.Context) (int64, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var count int64
	err := d.Cli.WithContext(ctx).Model(&File{}).Count(&count).Error
	return count, err
}

// IterFiles iterates all indexed files in stable virtual-path order,
// fetching in batches.
func (d *Database) IterFiles(ctx context.Context) iter.Seq[File] {
	return func(yield func(File) bool) {
		offset := 0
		for {
			files := []File{}

			d.Lock.Lock()
			err := d.Cli.WithContext(ctx).
				Order("virtual_path").
				Limit(iterateBatchSize).
				Offset(offset).
				Find(&files).Error
			d.Lock.Unlock()
			if err != nil {
				d.Logger.Error().Err(err).Msg("error fetching files from database")
				return
			}
			if len(files) == 0 {
				return
			}
			for i := range files {
				if ctx.Err() != nil {
					return
				}
				if !yield(files[i]) {
					return
				}
			}
			offset += iterateBatchSize
		}
	}
}

// ReferencedHashes returns every content hash referenced by a file or
// archive row. Used by garbage collection to decide which objects to keep.
func (d *Database) ReferencedHashes(ctx context.Context) (map[string]struct{}, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	referenced := map[string]struct{}{}

	var hashes []string
	if err := d.Cli.WithContext(ctx).Model(&File{}).Distinct().Pluck("hash", &hashes).Error; err != nil {
		return nil, fmt.Errorf("could not collect file hashes: %w", err)
	}
	for _, h := range hashes {
		referenced[h] = struct{}{}
	}

	hashes = hashes[:0]
	if err := d.Cli.WithContext(ctx).Model(&Archive{}).Distinct().Pluck("hash", &hashes).Error; err != nil {
		return nil, fmt.Errorf("could not collect archive hashes: %w", err)
	}
	for _, h := range hashes {
		referenced[h] = struct{}{}
	}

	return referenced, nil
}

// Validate returns indexed files whose content hash is not present in the
// content store. The stores are decoupled, so this is a validator rather
// than a foreign key.
func (d *Database) Validate(ctx context.Context, exists func(hash string) bool) ([]File, error) {
	var invalid []File
	for file := range d.IterFiles(ctx) {
		if !exists(file.Hash) {
			d.Logger.Warn().Object("file", file).Msg("indexed file missing from content store")
			invalid = append(invalid, file)
		}
	}
	if ctx.Err() != nil {
		return invalid, ctx.Err()
	}
	return invalid, nil
}
