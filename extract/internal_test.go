package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTraversal(t *testing.T) {
	assert.True(t, hasTraversal("../../etc/passwd"))
	assert.True(t, hasTraversal("logs/../../escape.txt"))
	assert.False(t, hasTraversal("logs/app.log"))
	assert.False(t, hasTraversal("logs/..hidden/app.log"))
}

func TestBombGuardTripsAboveRatio(t *testing.T) {
	guard := newBombGuard("a.zip", 1000, 10, 0)

	require.NoError(t, guard.addExtracted(9000))
	err := guard.addExtracted(2000)
	require.Error(t, err)

	securityErr, ok := err.(*SecurityError)
	require.True(t, ok)
	assert.Equal(t, ViolationCompressionRatio, securityErr.Violation)
}

func TestBombGuardFloorSuppressesTinyArchives(t *testing.T) {
	// 100x over the ratio, but below the floor where ratios mean nothing.
	guard := newBombGuard("tiny.zip", 10, 10, 64*1024)
	assert.NoError(t, guard.addExtracted(10_000))
}

func TestNestedScoreThreshold(t *testing.T) {
	assert.NoError(t, checkNestedScore(999, 1000, "a.zip"))
	err := checkNestedScore(1001, 1000, "a.zip")
	require.Error(t, err)

	securityErr, ok := err.(*SecurityError)
	require.True(t, ok)
	assert.Equal(t, ViolationNestedArchives, securityErr.Violation)
}

func TestPathPolicyResolve(t *testing.T) {
	policy := pathPolicy{maxLength: 4096, trigger: 0.8}

	resolved, shortened := policy.resolve("import/a.zip", "logs/app.log")
	assert.Equal(t, "import/a.zip/logs/app.log", resolved)
	assert.False(t, shortened)

	// Windows-style separators and leading slashes are normalized.
	resolved, _ = policy.resolve("import/a.zip", `logs\win.log`)
	assert.Equal(t, "import/a.zip/logs/win.log", resolved)

	resolved, _ = policy.resolve("import/a.zip", "/rooted.log")
	assert.Equal(t, "import/a.zip/rooted.log", resolved)
}

func TestPathPolicyShortens(t *testing.T) {
	policy := pathPolicy{maxLength: 100, trigger: 0.8}

	long := strings.Repeat("deeply/", 20) + "app.log"
	resolved, shortened := policy.resolve("import/a.zip", long)
	assert.True(t, shortened)
	assert.LessOrEqual(t, len(resolved), policy.triggerLength())
	assert.True(t, strings.HasSuffix(resolved, "/app.log"))

	// Shortening stays unique per original path.
	other, _ := policy.resolve("import/a.zip", strings.Repeat("other/", 20)+"app.log")
	assert.NotEqual(t, resolved, other)
}

func TestKindFromName(t *testing.T) {
	assert.Equal(t, KindZip, KindFromName("logs.zip"))
	assert.Equal(t, KindZip, KindFromName("LOGS.ZIP"))
	assert.Equal(t, KindTarGz, KindFromName("logs.tar.gz"))
	assert.Equal(t, KindTarGz, KindFromName("logs.tgz"))
	assert.Equal(t, KindTar, KindFromName("logs.tar"))
	assert.Equal(t, KindGz, KindFromName("app.log.gz"))
	assert.Equal(t, KindRar, KindFromName("logs.rar"))
	assert.Equal(t, KindNone, KindFromName("app.log"))
}

func TestDetectKindByMagicBytes(t *testing.T) {
	dir := t.TempDir()

	// Zip content behind an extensionless name.
	path := filepath.Join(dir, "mystery")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04rest"), 0o644))
	assert.Equal(t, KindZip, DetectKind(path))

	path = filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o644))
	assert.Equal(t, KindNone, DetectKind(path))
}

func TestCheckpointerRoundTrip(t *testing.T) {
	cp := newCheckpointer(t.TempDir(), 100, 1<<30, zerolog.Nop())

	checkpoint := newCheckpoint("run-1", "import/a.zip", "hash")
	checkpoint.markProcessed("import/a.zip/one.log")
	checkpoint.markProcessed("import/a.zip/two.log")
	require.NoError(t, cp.save("import/a.zip", checkpoint))

	loaded := cp.load("import/a.zip", "hash")
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.ProcessedFiles)
	assert.True(t, loaded.isProcessed("import/a.zip/one.log"))
	assert.False(t, loaded.isProcessed("import/a.zip/three.log"))
	assert.Equal(t, "import/a.zip/two.log", loaded.LastProcessedPath)

	cp.delete("import/a.zip")
	assert.Nil(t, cp.load("import/a.zip", "hash"))
}

func TestCheckpointerDiscardsCorrupt(t *testing.T) {
	dir := t.TempDir()
	cp := newCheckpointer(dir, 100, 1<<30, zerolog.Nop())

	require.NoError(t, os.WriteFile(cp.path("import/a.zip"), []byte("{not json"), 0o644))
	assert.Nil(t, cp.load("import/a.zip", "hash"))

	_, err := os.Stat(cp.path("import/a.zip"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpointerDiscardsStaleHash(t *testing.T) {
	dir := t.TempDir()
	cp := newCheckpointer(dir, 100, 1<<30, zerolog.Nop())

	checkpoint := newCheckpoint("run-1", "import/a.zip", "oldhash")
	checkpoint.markProcessed("import/a.zip/one.log")
	require.NoError(t, cp.save("import/a.zip", checkpoint))

	// The path now holds different bytes; the checkpoint must not apply.
	assert.Nil(t, cp.load("import/a.zip", "newhash"))
	_, err := os.Stat(cp.path("import/a.zip"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpointerIntervals(t *testing.T) {
	cp := newCheckpointer(t.TempDir(), 100, 1<<20, zerolog.Nop())

	assert.False(t, cp.shouldWrite(99, 0))
	assert.True(t, cp.shouldWrite(100, 0))
	assert.True(t, cp.shouldWrite(0, 1<<20))

	disabled := newCheckpointer(t.TempDir(), 0, 0, zerolog.Nop())
	assert.False(t, disabled.shouldWrite(1_000_000, 1<<40))
}

func TestWorkQueueLIFO(t *testing.T) {
	q := newWorkQueue()
	q.push(workItem{name: "first"}, workItem{name: "second"})

	item, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "second", item.name)
	q.done()

	item, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "first", item.name)

	// The active holder can still add work discovered inside the item.
	q.push(workItem{name: "nested"})
	q.done()

	item, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "nested", item.name)
	q.done()

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestWorkQueueCloseStopsHandout(t *testing.T) {
	q := newWorkQueue()
	q.push(workItem{name: "pending"})
	q.close()

	_, ok := q.pop()
	assert.False(t, ok)
}
