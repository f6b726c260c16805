package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ashllll/loganalyzer/fileutils"
)

// zipFile is a zip writer that opens its backing file on first entry, so an
// export that matches nothing leaves no empty archive behind.
type zipFile struct {
	init         bool
	path         string
	file         *os.File
	writer       *zip.Writer
	lazyOpenFunc func() (*os.File, error)
}

func newLazyZipFile(path string) *zipFile {
	return &zipFile{
		path: path,
		lazyOpenFunc: func() (*os.File, error) {
			if fileutils.Exists(path) {
				return nil, fmt.Errorf("file or directory already exists with this name: %s", path)
			}
			return os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		},
	}
}

// newNullZipFile writes entries to the null device, for dry runs.
func newNullZipFile() *zipFile {
	return &zipFile{
		path: os.DevNull,
		lazyOpenFunc: func() (*os.File, error) {
			return os.OpenFile(os.DevNull, os.O_WRONLY, 0600)
		},
	}
}

func (z *zipFile) Path() string {
	return z.path
}

// Close the file and writer if it was opened.
func (z *zipFile) Close() error {
	if !z.init {
		return nil
	}
	defer func() {
		z.init = false
	}()
	err := z.writer.Close()
	return errors.Join(err, z.file.Close())
}

// CreateHeader creates a new entry, opening the backing file if needed.
func (z *zipFile) CreateHeader(fh *zip.FileHeader) (io.Writer, error) {
	if !z.init {
		var err error
		z.file, err = z.lazyOpenFunc()
		if err != nil {
			return nil, err
		}
		z.writer = zip.NewWriter(z.file)
		z.init = true
	}

	return z.writer.CreateHeader(fh)
}
