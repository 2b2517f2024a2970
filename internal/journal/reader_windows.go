//go:build windows

package journal

import (
	"golang.org/x/sys/windows"

	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// winReader backs Reader with real FSCTL_QUERY_USN_JOURNAL and
// FSCTL_READ_USN_JOURNAL calls against an open volume handle.
type winReader struct {
	handle    windows.Handle
	journalID uint64
	cursor    uint64
}

// NewReader wraps an already-open volume handle (see internal/volume).
func NewReader(handle windows.Handle) Reader {
	return &winReader{handle: handle}
}

func (r *winReader) Initialize() (Metadata, error) {
	data, err := queryUSNJournal(r.handle)
	if err != nil {
		if err == windows.ERROR_INVALID_FUNCTION || err == windows.ERROR_JOURNAL_NOT_ACTIVE {
			return Metadata{}, errs.Wrap(errs.ErrJournalDisabled, "usn journal is not active on this volume", err)
		}
		return Metadata{}, errs.Wrap(errs.ErrIO, "query usn journal failed", err)
	}

	r.journalID = data.UsnJournalID
	r.cursor = data.NextUsn

	return Metadata{
		JournalID:   data.UsnJournalID,
		FirstUSN:    data.FirstUsn,
		NextUSN:     data.NextUsn,
		MaximumSize: data.MaximumSize,
	}, nil
}

func (r *winReader) SetCursor(storedUSN uint64) (Metadata, CursorOutcome, error) {
	data, err := queryUSNJournal(r.handle)
	if err != nil {
		return Metadata{}, Resumed, errs.Wrap(errs.ErrIO, "query usn journal failed", err)
	}

	r.journalID = data.UsnJournalID

	meta := Metadata{
		JournalID:   data.UsnJournalID,
		FirstUSN:    data.FirstUsn,
		NextUSN:     data.NextUsn,
		MaximumSize: data.MaximumSize,
	}

	if storedUSN >= data.FirstUsn {
		r.cursor = storedUSN
		return meta, Resumed, nil
	}

	r.cursor = data.FirstUsn
	return meta, Wrapped, nil
}

func (r *winReader) ReadBatch(reasonMask uint32) ([]*usnrecord.Event, error) {
	raw, err := readUSNJournal(r.handle, r.cursor, reasonMask, r.journalID)
	if err != nil {
		if err == windows.ERROR_JOURNAL_ENTRY_DELETED {
			preWrapCursor := r.cursor

			data, qerr := queryUSNJournal(r.handle)
			if qerr != nil {
				return nil, errs.Wrap(errs.ErrIO, "re-query after journal wrap failed", qerr)
			}
			r.journalID = data.UsnJournalID
			r.cursor = data.NextUsn

			gapErr := errs.New(errs.ErrWrapped, "journal entry deleted, cursor reset to live tail")
			gapErr.GapFrom = int64(preWrapCursor)
			gapErr.GapTo = int64(data.FirstUsn)
			return nil, gapErr
		}
		return nil, errs.Wrap(errs.ErrIO, "read usn journal failed", err)
	}

	nextUSN, events, corrupt, perr := usnrecord.ParseBatch(raw)
	if perr != nil {
		return nil, errs.Wrap(errs.ErrIO, "parse usn batch failed", perr)
	}

	r.cursor = nextUSN
	if corrupt {
		return events, errs.New(errs.ErrCorruptBatch, "stopped parsing batch at a malformed record")
	}

	return events, nil
}

func (r *winReader) JournalID() uint64 { return r.journalID }

func (r *winReader) Cursor() uint64 { return r.cursor }

// Close does not close the volume handle: it belongs to the
// volume.Handle it came from, whose Release closes it exactly once.
func (r *winReader) Close() error {
	return nil
}
