package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies an input as a supported archive format, or KindNone for
// plain files.
type Kind int

const (
	KindNone Kind = iota
	KindZip
	KindTar
	KindTarGz
	KindGz
	KindRar
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindTar:
		return "tar"
	case KindTarGz:
		return "tar.gz"
	case KindGz:
		return "gz"
	case KindRar:
		return "rar"
	default:
		return "none"
	}
}

// Detector classifies a path as an archive kind. The engine trusts this
// classification.
type Detector interface {
	Detect(path string) Kind
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(path string) Kind

func (f DetectorFunc) Detect(path string) Kind {
	return f(path)
}

// KindFromName classifies by filename alone, for entries inside archives
// where no bytes are available yet.
func KindFromName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return KindTarGz
	case strings.HasSuffix(lower, ".zip"):
		return KindZip
	case strings.HasSuffix(lower, ".tar"):
		return KindTar
	case strings.HasSuffix(lower, ".gz"):
		return KindGz
	case strings.HasSuffix(lower, ".rar"):
		return KindRar
	default:
		return KindNone
	}
}

var (
	zipMagic = []byte("PK\x03\x04")
	gzMagic  = []byte{0x1f, 0x8b}
	rarMagic = []byte("Rar!\x1a\x07")
	tarMagic = []byte("ustar")
)

// DetectKind classifies a file on disk by extension, falling back to magic
// bytes when the extension is unknown or ambiguous.
func DetectKind(path string) Kind {
	if kind := KindFromName(filepath.Base(path)); kind != KindNone {
		return kind
	}

	f, err := os.Open(path)
	if err != nil {
		return KindNone
	}
	defer f.Close()

	header := make([]byte, 265)
	n, _ := f.Read(header)
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, zipMagic):
		return KindZip
	case bytes.HasPrefix(header, rarMagic):
		return KindRar
	case bytes.HasPrefix(header, gzMagic):
		return KindGz
	case len(header) > 262 && bytes.Equal(header[257:262], tarMagic):
		return KindTar
	default:
		return KindNone
	}
}
