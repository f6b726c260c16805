package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/metadata"
)

const insertBatchSize = 50

// Engine converts an input path (loose files, archives, archives of
// archives) into stored content plus metadata rows, enforcing the safety
// bounds configured through Options.
type Engine struct {
	store  *cas.Store
	db     *metadata.Database
	logger zerolog.Logger
	tmpDir string
	cp     *checkpointer
	o      options
}

// New builds an engine for one workspace. workspaceDir hosts the temp spool
// and checkpoint directories alongside the object store and database.
func New(store *cas.Store, db *metadata.Database, workspaceDir string, logger zerolog.Logger, opts ...Option) *Engine {
	o := defaultOptions()
	for _, applyOpts := range opts {
		applyOpts(&o)
	}

	return &Engine{
		store:  store,
		db:     db,
		logger: logger,
		tmpDir: filepath.Join(workspaceDir, "tmp"),
		cp:     newCheckpointer(filepath.Join(workspaceDir, "checkpoints"), o.checkpointFiles, o.checkpointBytes, logger),
		o:      o,
	}
}

// Result is what an extraction run produced. A run that hit recoverable
// problems still returns everything that succeeded plus the warnings
// describing what was skipped and why.
type Result struct {
	FilesProcessed    int
	ArchivesProcessed int
	Warnings          []Warning
	Elapsed           time.Duration
}

func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Int("files", r.FilesProcessed)
	e.Int("archives", r.ArchivesProcessed)
	e.Int("warnings", len(r.Warnings))
	e.Float64("seconds", r.Elapsed.Seconds())
}

// Extract walks inputPath (a file, an archive, or a directory of either)
// and indexes everything under virtualRoot. Archives are processed from an
// explicit work stack by a bounded worker pool; nesting depth is bounded by
// policy, not by the native stack.
//
// Only resource exhaustion at the workspace root is fatal. Everything else
// is reported through Result.Warnings.
func (e *Engine) Extract(ctx context.Context, inputPath string, virtualRoot string) (*Result, error) {
	startTime := time.Now()

	if err := os.MkdirAll(e.tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create spool directory: %w", err)
	}

	r := &run{
		e:     e,
		ctx:   ctx,
		id:    uuid.NewString(),
		queue: newWorkQueue(),
		policy: pathPolicy{
			maxLength: e.o.pathMaxLength,
			trigger:   e.o.pathTrigger,
		},
	}
	r.logger = e.logger.With().Str("run", r.id).Str("input", inputPath).Logger()
	r.progressLogger = r.logger.Sample(&zerolog.BurstSampler{
		Burst:  1,
		Period: 1 * time.Second,
	})

	r.logger.Info().Str("virtual_root", virtualRoot).Msg("starting extraction")
	defer func() {
		if ctx.Err() != nil {
			r.logger.Info().Float64("seconds", time.Since(startTime).Seconds()).Msg("extraction cancelled")
		} else {
			r.logger.Info().Float64("seconds", time.Since(startTime).Seconds()).Msg("extraction done")
		}
	}()

	if err := r.scanInput(inputPath, virtualRoot); err != nil {
		return nil, err
	}

	// Stop handing out work on cancellation; in-flight items finish.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.queue.close()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	for range e.o.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := r.queue.pop()
				if !ok {
					return
				}
				r.process(item)
				r.queue.done()
			}
		}()
	}
	wg.Wait()
	close(watchDone)

	result := r.buildResult(time.Since(startTime))
	return result, r.fatalErr()
}

type run struct {
	e              *Engine
	ctx            context.Context
	id             string
	logger         zerolog.Logger
	progressLogger zerolog.Logger
	queue          *workQueue
	policy         pathPolicy

	mu         sync.Mutex
	warnings   []Warning
	files      int
	archives   int
	processed  int
	discovered int
	fatal      error
}

// scanInput seeds the work stack from the input path. Loose regular files
// become file items; anything the detector classifies becomes an archive
// item at depth 0.
func (r *run) scanInput(inputPath string, virtualRoot string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("could not stat input path: %w", err)
	}

	if !info.IsDir() {
		r.enqueueInput(inputPath, virtualRoot, info)
		return nil
	}

	err = filepath.WalkDir(inputPath, func(p string, d fs.DirEntry, err error) error {
		if r.ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			r.warn(Warning{Message: err.Error(), FilePath: p, Category: FileSkipped})
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(inputPath, p)
		if err != nil {
			r.warn(Warning{Message: err.Error(), FilePath: p, Category: PathResolutionError})
			return nil
		}
		prefix := virtualRoot
		if dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." {
			if prefix != "" {
				prefix += "/"
			}
			prefix += dir
		}
		r.enqueueInput(p, prefix, info)
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not scan input directory: %w", err)
	}
	return nil
}

func (r *run) enqueueInput(p string, virtualPrefix string, info fs.FileInfo) {
	name := filepath.Base(p)
	virtualPath, shortened := r.policy.resolve(virtualPrefix, name)
	if shortened {
		r.warn(Warning{
			Message:  "virtual path exceeded length budget and was shortened",
			FilePath: virtualPath,
			Category: PathShortened,
		})
	}

	item := workItem{
		kind:        itemFile,
		realPath:    p,
		virtualPath: virtualPath,
		name:        name,
		modTime:     info.ModTime(),
		depth:       0,
		score:       1,
	}
	if kind := r.e.o.detector.Detect(p); kind != KindNone {
		item.kind = itemArchive
		item.archiveKind = kind
	}

	r.mu.Lock()
	r.discovered++
	r.mu.Unlock()
	r.queue.push(item)
}

func (r *run) process(item workItem) {
	if item.cleanup {
		defer os.Remove(item.realPath)
	}
	if r.fatalErr() != nil || r.ctx.Err() != nil {
		return
	}

	switch item.kind {
	case itemFile:
		r.processFile(item)
	case itemArchive:
		r.processArchive(item)
	}
}

// processFile stores one loose file and indexes it.
func (r *run) processFile(item workItem) {
	f, err := os.Open(item.realPath)
	if err != nil {
		r.fileError(err, item.virtualPath)
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > r.e.o.maxFileBytes {
		r.warn(Warning{
			Message:  fmt.Sprintf("file size %d exceeds limit %d", info.Size(), r.e.o.maxFileBytes),
			FilePath: item.virtualPath,
			Category: SecurityEvent,
		})
		return
	}

	hash, size, err := r.storeReader(f)
	if err != nil {
		r.fileError(err, item.virtualPath)
		return
	}

	err = r.e.db.InsertFiles(r.ctx, []*metadata.File{{
		Hash:            hash,
		VirtualPath:     item.virtualPath,
		OriginalName:    item.name,
		Size:            size,
		ModTime:         item.modTime.UTC(),
		MimeType:        r.detectMime(hash),
		ParentArchiveID: item.parentID,
		DepthLevel:      item.depth,
	}})
	if err != nil {
		r.fileError(err, item.virtualPath)
		return
	}

	r.countFile(item.virtualPath)
}

// processArchive runs one archive through the per-archive pipeline: store
// its bytes, insert its row, walk entries, index leaves, queue nested
// archives, and settle its status. An unrecoverable error here abandons
// only this subtree; siblings on the stack still process.
func (r *run) processArchive(item workItem) {
	logger := r.logger.With().Str("archive", item.virtualPath).Logger()

	info, err := os.Stat(item.realPath)
	if err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return
	}

	archiveID, archiveHash, skip := r.ensureArchiveRow(&item, logger)
	if skip {
		return
	}

	if err := r.e.db.UpdateArchiveStatus(r.ctx, archiveID, metadata.StatusExtracting); err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return
	}

	checkpoint := r.e.cp.load(item.virtualPath, archiveHash)
	if checkpoint == nil {
		checkpoint = newCheckpoint(r.id, item.virtualPath, archiveHash)
	}

	state := &archiveState{
		item:       item,
		id:         archiveID,
		checkpoint: checkpoint,
		guard:      newBombGuard(item.virtualPath, info.Size(), r.e.o.maxRatio, r.e.o.guardFloorBytes),
		logger:     logger,
	}

	walkErr := walkArchive(item.realPath, item.archiveKind, func(en entry) error {
		return r.processEntry(state, en)
	})

	r.settleArchive(state, walkErr)
}

// ensureArchiveRow stores the archive bytes and finds or creates its
// metadata row. Nested archives arrive with both already done by their
// parent's walk. Returns skip=true when nothing further should happen
// (already completed, or an error was recorded).
func (r *run) ensureArchiveRow(item *workItem, logger zerolog.Logger) (uint, string, bool) {
	if item.archiveID != nil {
		return *item.archiveID, item.archiveHash, false
	}

	f, err := os.Open(item.realPath)
	if err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return 0, "", true
	}
	hash, _, err := r.storeReader(f)
	f.Close()
	if err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return 0, "", true
	}

	existing, err := r.e.db.GetArchiveByVirtualPath(r.ctx, item.virtualPath)
	if err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return 0, "", true
	}
	if existing != nil {
		if existing.ExtractionStatus == metadata.StatusCompleted {
			logger.Info().Msg("archive already extracted, skipping")
			r.countArchive(item.virtualPath)
			return 0, "", true
		}
		return existing.ID, hash, false
	}

	id, err := r.e.db.InsertArchive(r.ctx, &metadata.Archive{
		Hash:             hash,
		VirtualPath:      item.virtualPath,
		OriginalName:     item.name,
		ArchiveType:      item.archiveKind.String(),
		ParentArchiveID:  item.parentID,
		DepthLevel:       item.depth,
		ExtractionStatus: metadata.StatusPending,
	})
	if err != nil {
		r.archiveError(err, item.virtualPath, nil)
		return 0, "", true
	}
	return id, hash, false
}

// archiveState carries per-archive mutable state across entry callbacks.
type archiveState struct {
	item       workItem
	id         uint
	checkpoint *Checkpoint
	guard      *bombGuard
	logger     zerolog.Logger

	batch         []*metadata.File
	childArchives int
	leafEntries   int
	filesSince    int
	bytesSince    int64
	flushErr      error
}

func (r *run) processEntry(state *archiveState, en entry) error {
	if r.ctx.Err() != nil || r.fatalErr() != nil {
		return errStopWalk
	}

	if hasTraversal(en.name) {
		r.warn(Warning{
			Message:  "entry path contains a parent-directory traversal component",
			FilePath: en.name,
			Category: SecurityEvent,
		})
		return nil
	}

	virtualPath, shortened := r.policy.resolve(state.item.virtualPath, en.name)
	if shortened {
		r.warn(Warning{
			Message:  "virtual path exceeded length budget and was shortened",
			FilePath: virtualPath,
			Category: PathShortened,
		})
	}

	r.mu.Lock()
	r.discovered++
	r.mu.Unlock()

	if kind := KindFromName(en.name); kind != KindNone {
		return r.processNestedArchive(state, en, kind, virtualPath)
	}
	return r.processLeafEntry(state, en, virtualPath)
}

// processNestedArchive spools an archive entry to a temp file, stores its
// bytes, pre-inserts its row and pushes it onto the work stack. Its own
// extraction happens later, possibly on another worker.
func (r *run) processNestedArchive(state *archiveState, en entry, kind Kind, virtualPath string) error {
	childDepth := state.item.depth + 1
	if childDepth >= r.e.o.maxDepth {
		r.warn(Warning{
			Message:  fmt.Sprintf("nesting depth %d reached the configured limit %d, subtree skipped", childDepth, r.e.o.maxDepth),
			FilePath: virtualPath,
			Category: DepthLimitReached,
		})
		return nil
	}

	state.childArchives++
	childScore := state.item.score * float64(state.childArchives)
	if err := checkNestedScore(childScore, r.e.o.nestedScoreThreshold, virtualPath); err != nil {
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: SecurityEvent})
		return nil
	}

	existing, err := r.e.db.GetArchiveByVirtualPath(r.ctx, virtualPath)
	if err == nil && existing != nil && existing.ExtractionStatus == metadata.StatusCompleted {
		r.countArchive(virtualPath)
		return nil
	}

	tmp, err := os.CreateTemp(r.e.tmpDir, "nested-*")
	if err != nil {
		if isFatal(err) {
			r.setFatal(err)
			return errStopWalk
		}
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
		return nil
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, newGuardReader(en.reader, state.guard, r.e.o.maxFileBytes, virtualPath))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		var securityErr *SecurityError
		if errors.As(err, &securityErr) {
			return err
		}
		if isFatal(err) {
			r.setFatal(err)
			return errStopWalk
		}
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
		return nil
	}

	spool, err := os.Open(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
		return nil
	}
	hash, _, err := r.storeReader(spool)
	spool.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		if isFatal(err) {
			r.setFatal(err)
			return errStopWalk
		}
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
		return nil
	}

	var childID uint
	if existing != nil {
		childID = existing.ID
	} else {
		childID, err = r.e.db.InsertArchive(r.ctx, &metadata.Archive{
			Hash:             hash,
			VirtualPath:      virtualPath,
			OriginalName:     path.Base(en.name),
			ArchiveType:      kind.String(),
			ParentArchiveID:  &state.id,
			DepthLevel:       childDepth,
			ExtractionStatus: metadata.StatusPending,
		})
		if err != nil {
			_ = os.Remove(tmpPath)
			r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
			return nil
		}
	}

	r.queue.push(workItem{
		kind:        itemArchive,
		realPath:    tmpPath,
		virtualPath: virtualPath,
		name:        path.Base(en.name),
		modTime:     en.modTime,
		archiveKind: kind,
		archiveID:   &childID,
		archiveHash: hash,
		parentID:    &state.id,
		depth:       childDepth,
		score:       childScore,
		cleanup:     true,
	})
	return nil
}

func (r *run) processLeafEntry(state *archiveState, en entry, virtualPath string) error {
	state.leafEntries++
	state.checkpoint.TotalFiles = state.leafEntries

	if state.checkpoint.isProcessed(virtualPath) {
		r.countFile(virtualPath)
		return nil
	}

	if en.size > r.e.o.maxFileBytes {
		r.warn(Warning{
			Message:  fmt.Sprintf("entry size %d exceeds limit %d", en.size, r.e.o.maxFileBytes),
			FilePath: virtualPath,
			Category: SecurityEvent,
		})
		return nil
	}

	hash, size, err := r.storeReader(newGuardReader(en.reader, state.guard, r.e.o.maxFileBytes, virtualPath))
	if err != nil {
		var securityErr *SecurityError
		if errors.As(err, &securityErr) {
			// Zip bomb or oversized entry: halt this whole branch.
			return err
		}
		if isFatal(err) {
			r.setFatal(err)
			return errStopWalk
		}
		r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: FileSkipped})
		return nil
	}

	state.batch = append(state.batch, &metadata.File{
		Hash:            hash,
		VirtualPath:     virtualPath,
		OriginalName:    path.Base(en.name),
		Size:            size,
		ModTime:         en.modTime.UTC(),
		MimeType:        r.detectMime(hash),
		ParentArchiveID: &state.id,
		DepthLevel:      state.item.depth + 1,
	})
	state.checkpoint.markProcessed(virtualPath)
	state.filesSince++
	state.bytesSince += size

	if len(state.batch) >= insertBatchSize {
		r.flushBatch(state)
	}
	if r.e.cp.shouldWrite(state.filesSince, state.bytesSince) {
		r.flushBatch(state)
		if err := r.e.cp.save(state.item.virtualPath, state.checkpoint); err != nil {
			state.logger.Warn().Err(err).Msg("could not save checkpoint")
		}
		state.filesSince = 0
		state.bytesSince = 0
	}

	r.countFile(virtualPath)
	return nil
}

// flushBatch indexes the pending leaf rows in one transaction, so readers
// never observe half of a unit of work.
func (r *run) flushBatch(state *archiveState) {
	if len(state.batch) == 0 {
		return
	}
	if err := r.e.db.InsertFiles(r.ctx, state.batch); err != nil {
		state.flushErr = err
	}
	state.batch = nil
}

// settleArchive flushes what the walk produced and finalizes the archive's
// status based on how the walk ended.
func (r *run) settleArchive(state *archiveState, walkErr error) {
	r.flushBatch(state)

	virtualPath := state.item.virtualPath

	if r.ctx.Err() != nil || r.fatalErr() != nil {
		// Leave the archive in extracting; the checkpoint lets a later run
		// resume where this one stopped.
		if err := r.e.cp.save(virtualPath, state.checkpoint); err != nil {
			state.logger.Warn().Err(err).Msg("could not save checkpoint")
		}
		return
	}

	var securityErr *SecurityError
	switch {
	case errors.As(walkErr, &securityErr):
		r.warn(Warning{Message: securityErr.Error(), FilePath: virtualPath, Category: SecurityEvent})
		state.logger.Warn().Str("violation", securityErr.Violation).Msg("security violation, branch halted")
		r.failArchive(state.id, virtualPath)
	case walkErr != nil:
		r.warn(Warning{Message: walkErr.Error(), FilePath: virtualPath, Category: ArchiveError})
		state.logger.Warn().Err(walkErr).Msg("archive extraction failed")
		r.failArchive(state.id, virtualPath)
	case state.flushErr != nil:
		r.warn(Warning{Message: state.flushErr.Error(), FilePath: virtualPath, Category: ArchiveError})
		r.failArchive(state.id, virtualPath)
	default:
		if err := r.e.db.UpdateArchiveStatus(r.ctx, state.id, metadata.StatusCompleted); err != nil {
			r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
			return
		}
		r.e.cp.delete(virtualPath)
		r.countArchive(virtualPath)
		state.logger.Debug().Msg("archive completed")
	}
}

func (r *run) failArchive(id uint, virtualPath string) {
	if err := r.e.db.UpdateArchiveStatus(r.ctx, id, metadata.StatusFailed); err != nil {
		r.logger.Warn().Err(err).Str("archive", virtualPath).Msg("could not mark archive failed")
	}
	r.e.cp.delete(virtualPath)
}

func (r *run) storeReader(reader io.Reader) (string, int64, error) {
	if r.e.o.dryRun {
		return cas.HashReader(reader)
	}
	return r.e.store.StoreReader(r.ctx, reader)
}

// detectMime sniffs the stored object's content. Best effort: unknown or
// unreadable content yields an empty mime type.
func (r *run) detectMime(hash string) string {
	if r.e.o.dryRun {
		return ""
	}
	obj, err := r.e.store.Open(hash)
	if err != nil {
		return ""
	}
	defer obj.Close()

	mime, err := mimetype.DetectReader(obj)
	if err != nil {
		return ""
	}
	return mime.String()
}

// fileError records a per-file failure as a FileSkipped warning; the run
// continues.
func (r *run) fileError(err error, virtualPath string) {
	r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: FileSkipped})
}

// archiveError records a per-archive failure as an ArchiveError warning and,
// when the archive row is known, marks it failed so only that subtree stops.
func (r *run) archiveError(err error, virtualPath string, id *uint) {
	r.warn(Warning{Message: err.Error(), FilePath: virtualPath, Category: ArchiveError})
	if id != nil {
		r.failArchive(*id, virtualPath)
	}
}

func (r *run) warn(w Warning) {
	r.logger.Warn().Object("warning", w).Msg("extraction warning")
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
}

func (r *run) countFile(currentPath string) {
	r.mu.Lock()
	r.files++
	r.processed++
	processed, discovered := r.processed, r.discovered
	r.mu.Unlock()
	r.reportProgress(processed, discovered, currentPath)
}

func (r *run) countArchive(currentPath string) {
	r.mu.Lock()
	r.archives++
	r.processed++
	processed, discovered := r.processed, r.discovered
	r.mu.Unlock()
	r.reportProgress(processed, discovered, currentPath)
}

func (r *run) reportProgress(processed, discovered int, currentPath string) {
	if r.e.o.progress != nil {
		r.e.o.progress(processed, discovered, currentPath)
	}
	r.progressLogger.Info().
		Int("processed", processed).
		Int("discovered", discovered).
		Str("current", currentPath).
		Msg("extracting")
}

func (r *run) setFatal(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
	r.queue.close()
}

func (r *run) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *run) buildResult(elapsed time.Duration) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{
		FilesProcessed:    r.files,
		ArchivesProcessed: r.archives,
		Warnings:          r.warnings,
		Elapsed:           elapsed,
	}
}

// isFatal reports resource exhaustion that must abort the whole run rather
// than a single file or archive.
func isFatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, os.ErrPermission)
}

// guardReader feeds the zip-bomb guard and the per-entry size limit while
// content streams into the store.
type guardReader struct {
	r         io.Reader
	guard     *bombGuard
	remaining int64
	path      string
}

func newGuardReader(r io.Reader, guard *bombGuard, maxBytes int64, path string) *guardReader {
	return &guardReader{r: r, guard: guard, remaining: maxBytes, path: path}
}

func (g *guardReader) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if n > 0 {
		if guardErr := g.guard.addExtracted(int64(n)); guardErr != nil {
			return n, guardErr
		}
		g.remaining -= int64(n)
		if g.remaining < 0 {
			return n, &SecurityError{
				Violation: ViolationFileSize,
				Path:      g.path,
				Detail:    "entry exceeded the single-file size limit",
			}
		}
	}
	return n, err
}
