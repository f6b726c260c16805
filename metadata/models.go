package metadata

import (
	"time"

	"github.com/rs/zerolog"
)

// Extraction status lifecycle of an archive: pending -> extracting ->
// completed | failed.
const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// File is one leaf file's position in the logical directory tree. Its bytes
// live in the content store under Hash; VirtualPath reflects archive nesting
// and is unique per workspace.
type File struct {
	ID              uint   `gorm:"primaryKey"`
	Hash            string `gorm:"index;size:64;not null"`
	VirtualPath     string `gorm:"uniqueIndex;not null"`
	OriginalName    string `gorm:"not null"`
	Size            int64
	ModTime         time.Time
	MimeType        string
	ParentArchiveID *uint `gorm:"index"`
	DepthLevel      int   `gorm:"index"`
	CreatedAt       time.Time
}

func (f File) MarshalZerologObject(e *zerolog.Event) {
	e.Str("virtual_path", f.VirtualPath)
	e.Str("name", f.OriginalName)
	e.Str("hash", f.Hash)
	e.Int64("size", f.Size)
	e.Int("depth", f.DepthLevel)
	if f.ParentArchiveID != nil {
		e.Uint("parent_archive", *f.ParentArchiveID)
	}
}

// Archive is one archive node in the nesting hierarchy. Its extracted
// children are separate File/Archive rows referencing it as parent; the
// depth of any child is DepthLevel+1.
type Archive struct {
	ID               uint   `gorm:"primaryKey"`
	Hash             string `gorm:"index;size:64;not null"`
	VirtualPath      string `gorm:"uniqueIndex;not null"`
	OriginalName     string `gorm:"not null"`
	ArchiveType      string
	ParentArchiveID  *uint `gorm:"index"`
	DepthLevel       int   `gorm:"index"`
	ExtractionStatus string `gorm:"index"`
	CreatedAt        time.Time
}

func (a Archive) MarshalZerologObject(e *zerolog.Event) {
	e.Str("virtual_path", a.VirtualPath)
	e.Str("name", a.OriginalName)
	e.Str("hash", a.Hash)
	e.Str("type", a.ArchiveType)
	e.Str("status", a.ExtractionStatus)
	e.Int("depth", a.DepthLevel)
	if a.ParentArchiveID != nil {
		e.Uint("parent_archive", *a.ParentArchiveID)
	}
}
