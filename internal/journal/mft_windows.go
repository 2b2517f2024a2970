//go:build windows

package journal

import (
	"context"

	"golang.org/x/sys/windows"

	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// MFTEnumerator bootstraps Resolver.Populate over FSCTL_ENUM_USN_DATA,
// paging through the volume's entire MFT from a starting FRN.
type MFTEnumerator struct {
	handle windows.Handle
}

var _ pathresolver.EntrySource = (*MFTEnumerator)(nil)

// NewMFTEnumerator wraps an already-open volume handle (see
// internal/volume). The same handle backing the journal reader may be
// reused here; FSCTL_ENUM_USN_DATA and FSCTL_READ_USN_JOURNAL are
// independent operations against it.
func NewMFTEnumerator(handle windows.Handle) *MFTEnumerator {
	return &MFTEnumerator{handle: handle}
}

// Each pages through the MFT from FRN 0, decoding each page with
// usnrecord.ParseMFTEnumBatch and invoking fn once per record. It stops
// at ERROR_HANDLE_EOF, the documented terminal condition for
// FSCTL_ENUM_USN_DATA, and treats any other DeviceIoControl failure as
// fatal to the whole enumeration.
func (m *MFTEnumerator) Each(ctx context.Context, fn func(pathresolver.MFTEntry) error) error {
	startFRN := uint64(0)

	for {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrCancelled, "mft enumeration cancelled", ctx.Err())
		}

		raw, err := enumUSNData(m.handle, startFRN)
		if err != nil {
			if err == windows.ERROR_HANDLE_EOF {
				return nil
			}
			return errs.Wrap(errs.ErrIO, "enum usn data failed", err)
		}

		nextFRN, records, perr := usnrecord.ParseMFTEnumBatch(raw)
		if perr != nil {
			return errs.Wrap(errs.ErrIO, "parse mft enum batch failed", perr)
		}

		for _, rec := range records {
			entry := pathresolver.MFTEntry{
				FRN:         rec.FRN,
				ParentFRN:   rec.ParentFRN,
				Name:        rec.Name,
				IsDirectory: rec.IsDirectory,
			}
			if err := fn(entry); err != nil {
				return err
			}
		}

		if len(records) == 0 || nextFRN <= startFRN {
			return nil
		}
		startFRN = nextFRN
	}
}
