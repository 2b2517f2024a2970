package usnrecord

import "time"

// Event is the managed, owned representation of a single USN journal
// record (or, after the coalescer merges a burst, of several).
//
// The reader's batch iterator aliases a native buffer that is freed once
// iteration ends; every field here is copied out of that buffer before
// the caller sees the Event, so it can be retained indefinitely.
type Event struct {
	USN         int64
	Timestamp   time.Time // UTC
	FRN         uint64
	ParentFRN   uint64
	FileName    string
	FullPath    string // empty if unresolved
	OldPath     string // empty unless this is a resolved rename
	NewPath     string // empty unless this is a resolved rename
	Reasons     []string
	ReasonRaw   uint32
	IsDirectory bool
	Attributes  uint32
}

// IsClose reports whether the CLOSE bit is set.
func (e *Event) IsClose() bool { return e.ReasonRaw&ReasonClose != 0 }

// IsCreate reports whether the FILE_CREATE bit is set.
func (e *Event) IsCreate() bool { return e.ReasonRaw&reasonCreateMask != 0 }

// IsDelete reports whether the FILE_DELETE bit is set.
func (e *Event) IsDelete() bool { return e.ReasonRaw&reasonDeleteMask != 0 }

// IsRenameOldName reports whether the RENAME_OLD_NAME bit is set.
func (e *Event) IsRenameOldName() bool { return e.ReasonRaw&ReasonRenameOldName != 0 }

// IsRenameNewName reports whether the RENAME_NEW_NAME bit is set.
func (e *Event) IsRenameNewName() bool { return e.ReasonRaw&ReasonRenameNewName != 0 }

// IsRename reports whether either rename bit is set.
func (e *Event) IsRename() bool { return e.ReasonRaw&reasonRenameMask != 0 }

// IsDataChange reports whether any data-change bit is set.
func (e *Event) IsDataChange() bool { return e.ReasonRaw&reasonDataChangeMask != 0 }

// Clone returns a deep copy safe to store independently of e (used by the
// coalescer, which mutates a pending slot's merged event in place).
func (e *Event) Clone() *Event {
	c := *e
	c.Reasons = append([]string(nil), e.Reasons...)
	return &c
}
