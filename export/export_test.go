package export_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/export"
	"github.com/ashllll/loganalyzer/metadata"
)

func setupExport(t *testing.T) (*cas.Store, *metadata.Database) {
	t.Helper()

	store, err := cas.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, metadata.Migrate(gormDB))

	return store, &metadata.Database{
		Cli:    gormDB,
		Logger: zerolog.Nop(),
	}
}

func indexFile(t *testing.T, store *cas.Store, db *metadata.Database, virtualPath, content string) {
	t.Helper()

	hash, err := store.StoreContent(context.Background(), []byte(content))
	require.NoError(t, err)

	_, err = db.InsertFile(context.Background(), &metadata.File{
		Hash:         hash,
		VirtualPath:  virtualPath,
		OriginalName: filepath.Base(virtualPath),
		Size:         int64(len(content)),
		ModTime:      time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
}

func TestExportToDirectory(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/a.zip/app.log", "hello export")
	indexFile(t, store, db, "import/a.zip/sub/deep.log", "nested export")

	dest := t.TempDir()
	stats, err := export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesExported)
	assert.Equal(t, 0, stats.FilesSkipped)

	content, err := os.ReadFile(filepath.Join(dest, "import", "a.zip", "app.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello export", string(content))

	content, err = os.ReadFile(filepath.Join(dest, "import", "a.zip", "sub", "deep.log"))
	require.NoError(t, err)
	assert.Equal(t, "nested export", string(content))
}

func TestExportSkipsIdenticalFiles(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/app.log", "same bytes")

	dest := t.TempDir()
	stats, err := export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExported)

	stats, err = export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesExported)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestExportDoesNotClobberModifiedFiles(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/app.log", "indexed content")

	dest := t.TempDir()
	existing := filepath.Join(dest, "import", "app.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("local edits"), 0o644))

	stats, err := export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesExported)
	assert.Equal(t, 1, stats.FilesSkipped)

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "local edits", string(content))

	stats, err = export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop(), export.WithOverwrite(true))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExported)

	content, err = os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "indexed content", string(content))
}

func TestExportPathPrefix(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "logs/kernel/boot.log", "kernel")
	indexFile(t, store, db, "logs/app/server.log", "app")

	dest := t.TempDir()
	stats, err := export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop(),
		export.WithPathPrefix("logs/kernel"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExported)

	_, err = os.Stat(filepath.Join(dest, "logs", "app", "server.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportDryRun(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/app.log", "not written")

	dest := t.TempDir()
	stats, err := export.ToDirectory(context.Background(), store, db, dest, zerolog.Nop(),
		export.WithDryRun(true))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExported)

	_, err = os.Stat(filepath.Join(dest, "import", "app.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportToArchive(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/a.zip/app.log", "zipped back up")
	indexFile(t, store, db, "import/a.zip/other.log", "second entry")

	destPath := filepath.Join(t.TempDir(), "export.zip")
	stats, err := export.ToArchive(context.Background(), store, db, destPath, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesExported)

	r, err := zip.OpenReader(destPath)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 2)

	entry, err := r.Open("import/a.zip/app.log")
	require.NoError(t, err)
	defer entry.Close()

	buf := make([]byte, 64)
	n, _ := entry.Read(buf)
	assert.Equal(t, "zipped back up", string(buf[:n]))
}

func TestExportToArchiveDryRunCreatesNothing(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/app.log", "dry")

	destPath := filepath.Join(t.TempDir(), "export.zip")
	stats, err := export.ToArchive(context.Background(), store, db, destPath, zerolog.Nop(),
		export.WithDryRun(true))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExported)

	_, err = os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
}

func TestExportToArchiveMatchingNothingLeavesNoFile(t *testing.T) {
	store, db := setupExport(t)
	indexFile(t, store, db, "import/app.log", "content")

	destPath := filepath.Join(t.TempDir(), "export.zip")
	stats, err := export.ToArchive(context.Background(), store, db, destPath, zerolog.Nop(),
		export.WithPathPrefix("nomatch/"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesExported)

	_, err = os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
}
