package extract

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/nwaples/rardecode"
)

// errStopWalk aborts an archive walk without reporting an error.
var errStopWalk = errors.New("stop walk")

// entry is one member of an archive while it is being walked. The reader is
// only valid for the duration of the callback.
type entry struct {
	name    string // slash-separated path within the archive
	size    int64  // uncompressed size, -1 if unknown until read
	modTime time.Time
	reader  io.Reader
}

type walkFunc func(e entry) error

// walkArchive enumerates the regular-file entries of an archive
// sequentially, invoking fn for each one. Formats that only support
// sequential access (tar, gz, rar) and random access (zip) are walked the
// same way.
func walkArchive(path string, kind Kind, fn walkFunc) error {
	var err error
	switch kind {
	case KindZip:
		err = walkZip(path, fn)
	case KindTar:
		err = walkTarFile(path, false, fn)
	case KindTarGz:
		err = walkTarFile(path, true, fn)
	case KindGz:
		err = walkGz(path, fn)
	case KindRar:
		err = walkRar(path, fn)
	default:
		return fmt.Errorf("unsupported archive kind %s", kind)
	}
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func walkZip(path string, fn walkFunc) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("could not open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("could not open zip entry %s: %w", f.Name, err)
		}
		err = fn(entry{
			name:    f.Name,
			size:    int64(f.UncompressedSize64),
			modTime: f.Modified,
			reader:  rc,
		})
		closeErr := rc.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return fmt.Errorf("could not read zip entry %s: %w", f.Name, closeErr)
		}
	}
	return nil
}

func walkTarFile(path string, gzipped bool, fn walkFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open tar: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("could not open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(entry{
			name:    hdr.Name,
			size:    hdr.Size,
			modTime: hdr.ModTime,
			reader:  tr,
		}); err != nil {
			return err
		}
	}
}

// walkGz treats a plain gzip file as an archive with one entry named after
// the file, minus the .gz suffix.
func walkGz(path string, fn walkFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open gzip file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("could not open gzip stream: %w", err)
	}
	defer gz.Close()

	name := gz.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".gz")
	}
	modTime := gz.ModTime
	if modTime.IsZero() {
		if info, err := f.Stat(); err == nil {
			modTime = info.ModTime()
		}
	}

	return fn(entry{
		name:    name,
		size:    -1,
		modTime: modTime,
		reader:  gz,
	})
}

func walkRar(path string, fn walkFunc) error {
	rc, err := rardecode.OpenReader(path, "")
	if err != nil {
		return fmt.Errorf("could not open rar: %w", err)
	}
	defer rc.Close()

	for {
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read rar header: %w", err)
		}
		if hdr.IsDir {
			continue
		}
		if err := fn(entry{
			name:    hdr.Name,
			size:    hdr.UnPackedSize,
			modTime: hdr.ModificationTime,
			reader:  rc,
		}); err != nil {
			return err
		}
	}
}
