package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when no object exists for the requested hash.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidHash is returned for identifiers that are not 64 hex characters.
	ErrInvalidHash = errors.New("invalid content hash")
)

// Buffer size for streaming reads while hashing.
const hashBufferSize = 8 * 1024

const objectsDirName = "objects"

// Store is a content-addressable object store. Objects are identified by the
// SHA-256 hex digest of their bytes and laid out git-style under
// <workspace>/objects/<hash[:2]>/<hash[2:]> to bound directory fan-out.
// Identical content is stored at most once.
type Store struct {
	objectsDir string
	logger     zerolog.Logger
}

// New opens (creating if needed) the object store rooted at workspaceDir.
func New(workspaceDir string, logger zerolog.Logger) (*Store, error) {
	objectsDir := filepath.Join(workspaceDir, objectsDirName)
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create objects directory: %w", err)
	}
	return &Store{
		objectsDir: objectsDir,
		logger:     logger.With().Str("objects", objectsDir).Logger(),
	}, nil
}

// ComputeHash returns the SHA-256 hex digest of content. Pure and
// deterministic: the same bytes always produce the same hash.
func ComputeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashReader computes the SHA-256 hex digest of r incrementally in 8 KiB
// chunks, bounding memory regardless of input size. Returns the digest and
// the number of bytes read. It does not close the reader.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidHash reports whether hash looks like a SHA-256 hex digest.
func ValidHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ObjectPath returns the physical path an object with the given hash would
// occupy. It does not check existence.
func (s *Store) ObjectPath(hash string) string {
	return filepath.Join(s.objectsDir, hash[:2], hash[2:])
}

// Exists reports whether an object with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.ObjectPath(hash))
	return err == nil
}

// StoreContent stores content under its hash, writing only if absent.
// Returns the hash either way.
func (s *Store) StoreContent(ctx context.Context, content []byte) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	hash := ComputeHash(content)
	if s.Exists(hash) {
		s.logger.Debug().Str("hash", hash).Msg("object already stored")
		return hash, nil
	}

	if err := s.writeObject(hash, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	}); err != nil {
		return "", err
	}

	s.logger.Debug().Str("hash", hash).Int("size", len(content)).Msg("stored object")
	return hash, nil
}

// StoreReader streams r into the store, hashing while writing. The content is
// spooled to a temporary file and renamed into its hash-derived path, so a
// concurrent duplicate write is a harmless no-op. Returns the hash and the
// number of bytes read.
func (s *Store) StoreReader(ctx context.Context, r io.Reader) (string, int64, error) {
	if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}

	tmp, err := os.CreateTemp(s.objectsDir, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("could not create temporary object: %w", err)
	}
	tmpPath := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			_ = os.Remove(tmpPath)
		}
	}()

	hash, size, err := HashReader(io.TeeReader(r, tmp))
	closeErr := tmp.Close()
	if err != nil {
		return "", size, fmt.Errorf("could not spool content: %w", err)
	}
	if closeErr != nil {
		return "", size, fmt.Errorf("could not spool content: %w", closeErr)
	}

	if s.Exists(hash) {
		s.logger.Debug().Str("hash", hash).Msg("object already stored")
		return hash, size, nil
	}

	objectPath := s.ObjectPath(hash)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return "", size, fmt.Errorf("could not create object directory: %w", err)
	}
	if err := os.Rename(tmpPath, objectPath); err != nil {
		return "", size, fmt.Errorf("could not place object: %w", err)
	}
	removeTmp = false

	s.logger.Debug().Str("hash", hash).Int64("size", size).Msg("stored object")
	return hash, size, nil
}

// ReadContent returns the full bytes of the object with the given hash.
func (s *Store) ReadContent(ctx context.Context, hash string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !ValidHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	content, err := os.ReadFile(s.ObjectPath(hash))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read object %s: %w", hash, err)
	}
	return content, nil
}

// Open returns a streaming reader over the object with the given hash.
func (s *Store) Open(hash string) (io.ReadCloser, error) {
	if !ValidHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	f, err := os.Open(s.ObjectPath(hash))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("could not open object %s: %w", hash, err)
	}
	return f, nil
}

// ObjectCount walks the sharded layout and returns the number of stored
// objects.
func (s *Store) ObjectCount() (int, error) {
	var count int
	err := s.forEachObject(func(string, string) error {
		count++
		return nil
	})
	return count, err
}

func (s *Store) forEachObject(fn func(hash string, path string) error) error {
	shards, err := os.ReadDir(s.objectsDir)
	if err != nil {
		return fmt.Errorf("could not read objects directory: %w", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		shardDir := filepath.Join(s.objectsDir, shard.Name())
		objects, err := os.ReadDir(shardDir)
		if err != nil {
			return fmt.Errorf("could not read shard %s: %w", shard.Name(), err)
		}
		for _, object := range objects {
			if object.IsDir() {
				continue
			}
			hash := shard.Name() + object.Name()
			if !ValidHash(hash) {
				continue
			}
			if err := fn(hash, filepath.Join(shardDir, object.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) writeObject(hash string, write func(w io.Writer) error) error {
	objectPath := s.ObjectPath(hash)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return fmt.Errorf("could not create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), "incoming-*")
	if err != nil {
		return fmt.Errorf("could not create temporary object: %w", err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("could not write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("could not write object: %w", err)
	}
	if err := os.Rename(tmpPath, objectPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("could not place object: %w", err)
	}
	return nil
}
