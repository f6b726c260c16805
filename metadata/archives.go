package metadata

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// InsertArchive records one archive node, transactionally.
func (d *Database) InsertArchive(ctx context.Context, archive *Archive) (uint, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Object("archive", *archive).Msg("would insert archive (dry run)")
		return 0, nil
	}

	err := d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(archive).Error
	})
	if err != nil {
		return 0, fmt.Errorf("could not insert archive %s: %w", archive.VirtualPath, err)
	}

	d.Logger.Debug().Object("archive", *archive).Msg("inserted archive")
	return archive.ID, nil
}

// GetArchiveByID returns the archive row, or nil if unknown.
func (d *Database) GetArchiveByID(ctx context.Context, id uint) (*Archive, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	archive := &Archive{}
	err := d.Cli.WithContext(ctx).First(archive, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not look up archive %d: %w", id, err)
	}
	return archive, nil
}

// GetArchiveByVirtualPath returns the archive at the given virtual path, or
// nil if none is indexed.
func (d *Database) GetArchiveByVirtualPath(ctx context.Context, virtualPath string) (*Archive, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	archive := &Archive{}
	err := d.Cli.WithContext(ctx).Where(&Archive{VirtualPath: virtualPath}).First(archive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not look up archive %s: %w", virtualPath, err)
	}
	return archive, nil
}

// UpdateArchiveStatus transitions an archive's extraction status.
func (d *Database) UpdateArchiveStatus(ctx context.Context, id uint, status string) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Uint("archive", id).Str("status", status).Msg("would update archive status (dry run)")
		return nil
	}

	err := d.Cli.WithContext(ctx).
		Model(&Archive{}).
		Where("id = ?", id).
		Update("extraction_status", status).Error
	if err != nil {
		return fmt.Errorf("could not update archive %d status: %w", id, err)
	}

	d.Logger.Debug().Uint("archive", id).Str("status", status).Msg("updated archive status")
	return nil
}

// CountArchives returns the number of indexed archive nodes.
func (d *Database) CountArchives(ctx context.Context) (int64, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var count int64
	err := d.Cli.WithContext(ctx).Model(&Archive{}).Count(&count).Error
	return count, err
}
