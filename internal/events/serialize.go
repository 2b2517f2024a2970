// Package events renders managed usnrecord.Event values and control
// messages (GAP, CURSOR_RESET) into the NDJSON lines written to stdout
// and broadcast to pipe subscribers.
//
// Serialization uses ohler55/ojg/oj (as agentic-research-mache in the
// pack does) for fast marshaling rather than encoding/json: oj.Marshal over a pre-built
// map skips the reflection walk encoding/json would do on *Event and
// lets absent fields be genuinely omitted rather than nulled.
package events

import (
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// ToLine renders a single managed event as one NDJSON line, without the
// trailing newline.
func ToLine(e *usnrecord.Event) ([]byte, error) {
	obj := map[string]any{
		"usn":                   e.USN,
		"timestamp":             e.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		"fileReferenceNumber":   hex16(e.FRN),
		"parentReferenceNumber": hex16(e.ParentFRN),
		"fileName":              e.FileName,
		"reason":                toAnySlice(e.Reasons),
		"reasonRaw":             e.ReasonRaw,
		"isDirectory":           e.IsDirectory,
		"attributes":            toAnySlice(usnrecord.DecodeAttributes(e.Attributes)),
	}

	if e.FullPath != "" {
		obj["fullPath"] = e.FullPath
	}
	if e.OldPath != "" {
		obj["oldPath"] = e.OldPath
	}
	if e.NewPath != "" {
		obj["newPath"] = e.NewPath
	}

	return oj.Marshal(obj)
}

// GapLine renders the GAP control message emitted at startup when the
// stored cursor had fallen behind the journal's first-available USN, and
// again whenever a batch read reports a journal wrap at runtime.
func GapLine(from, to int64) ([]byte, error) {
	return oj.Marshal(map[string]any{
		"type":   "GAP",
		"reason": "journal_wrapped",
		"from":   from,
		"to":     to,
	})
}

// CursorResetLine renders the CURSOR_RESET control message emitted when
// the journal ID no longer matches the persisted cursor (the journal was
// deleted and recreated since the last run).
func CursorResetLine() ([]byte, error) {
	return oj.Marshal(map[string]any{
		"type":   "CURSOR_RESET",
		"reason": "journal_recreated",
	})
}

func hex16(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
