// Package journal wraps the NTFS USN change journal: querying its
// metadata, positioning a cursor, and reading batches of raw records.
//
// The platform-agnostic pieces — the metadata shape and the cursor
// decision outcomes — live here so they can be referenced (and tested)
// without the windows build tag. The actual FSCTL plumbing lives in
// ioctl_windows.go, driven by reader_windows.go and mft_windows.go.
package journal

import "github.com/marmos91/usnwatcher/internal/usnrecord"

// Metadata describes the journal as reported by FSCTL_QUERY_USN_JOURNAL.
type Metadata struct {
	// JournalID changes only when the journal is deleted and recreated.
	JournalID uint64
	// FirstUSN is the wrap watermark: the oldest USN still retained.
	FirstUSN uint64
	// NextUSN is the live tail: the USN that will be assigned next.
	NextUSN uint64
	// MaximumSize is the configured journal size in bytes.
	MaximumSize uint64
}

// CursorOutcome reports how SetCursor positioned the reader relative to
// a caller-supplied stored USN.
type CursorOutcome int

const (
	// Resumed means the stored USN was at or after FirstUSN; the reader
	// now resumes exactly from there.
	Resumed CursorOutcome = iota
	// Wrapped means the stored USN had fallen behind FirstUSN; the reader
	// repositioned to FirstUSN and the caller must surface a gap.
	Wrapped
)

// Reader is the platform-independent surface the orchestrator drives.
// The Windows implementation backs it with real FSCTL calls; tests use a
// fake.
type Reader interface {
	Initialize() (Metadata, error)
	SetCursor(storedUSN uint64) (Metadata, CursorOutcome, error)
	ReadBatch(reasonMask uint32) ([]*usnrecord.Event, error)
	// JournalID returns the journal ID captured by the last Initialize or
	// SetCursor call, for cursor persistence.
	JournalID() uint64
	// Cursor returns the next-USN position the reader will resume from,
	// for cursor persistence.
	Cursor() uint64
	Close() error
}
