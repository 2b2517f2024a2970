//go:build windows

package journal

import (
	"encoding/binary"

	"golang.org/x/sys/windows"
)

// FSCTL codes for the USN change journal, per the Windows DDK.
const (
	fsctlQueryUSNJournal = 0x000900F4
	fsctlReadUSNJournal  = 0x000900BB
	fsctlEnumUSNData     = 0x000900B3
)

// usnJournalDataV0 mirrors USN_JOURNAL_DATA_V0 as returned by
// FSCTL_QUERY_USN_JOURNAL: seven little-endian uint64 fields.
type usnJournalDataV0 struct {
	UsnJournalID    uint64
	FirstUsn        uint64
	NextUsn         uint64
	LowestValidUsn  uint64
	MaxUsn          uint64
	MaximumSize     uint64
	AllocationDelta uint64
}

const usnJournalDataV0Size = 56

func queryUSNJournal(handle windows.Handle) (usnJournalDataV0, error) {
	var out [usnJournalDataV0Size]byte
	var returned uint32

	err := windows.DeviceIoControl(
		handle,
		fsctlQueryUSNJournal,
		nil, 0,
		&out[0], uint32(len(out)),
		&returned,
		nil,
	)
	if err != nil {
		return usnJournalDataV0{}, err
	}

	return usnJournalDataV0{
		UsnJournalID:    binary.LittleEndian.Uint64(out[0:8]),
		FirstUsn:        binary.LittleEndian.Uint64(out[8:16]),
		NextUsn:         binary.LittleEndian.Uint64(out[16:24]),
		LowestValidUsn:  binary.LittleEndian.Uint64(out[24:32]),
		MaxUsn:          binary.LittleEndian.Uint64(out[32:40]),
		MaximumSize:     binary.LittleEndian.Uint64(out[40:48]),
		AllocationDelta: binary.LittleEndian.Uint64(out[48:56]),
	}, nil
}

// readUSNJournalInput mirrors READ_USN_JOURNAL_DATA_V0: StartUsn,
// ReasonMask, ReturnOnlyOnClose, Timeout, BytesToWaitFor, UsnJournalID.
type readUSNJournalInput struct {
	StartUsn          uint64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	UsnJournalID      uint64
}

const readBatchBufferSize = 64 * 1024

func readUSNJournal(handle windows.Handle, startUSN uint64, reasonMask uint32, journalID uint64) ([]byte, error) {
	input := readUSNJournalInput{
		StartUsn:     startUSN,
		ReasonMask:   reasonMask,
		UsnJournalID: journalID,
	}

	inBuf := make([]byte, 40)
	binary.LittleEndian.PutUint64(inBuf[0:8], input.StartUsn)
	binary.LittleEndian.PutUint32(inBuf[8:12], input.ReasonMask)
	binary.LittleEndian.PutUint32(inBuf[12:16], input.ReturnOnlyOnClose)
	binary.LittleEndian.PutUint64(inBuf[16:24], input.Timeout)
	binary.LittleEndian.PutUint64(inBuf[24:32], input.BytesToWaitFor)
	binary.LittleEndian.PutUint64(inBuf[32:40], input.UsnJournalID)

	out := make([]byte, readBatchBufferSize)
	var returned uint32

	err := windows.DeviceIoControl(
		handle,
		fsctlReadUSNJournal,
		&inBuf[0], uint32(len(inBuf)),
		&out[0], uint32(len(out)),
		&returned,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return out[:returned], nil
}

// mftEnumDataV0 mirrors MFT_ENUM_DATA_V0: StartFileReferenceNumber and a
// [LowUsn, HighUsn] range. Passing the full uint64 range selects every
// record regardless of when it last changed, which is what a full
// bootstrap enumeration wants.
type mftEnumDataV0 struct {
	StartFileReferenceNumber uint64
	LowUsn                   uint64
	HighUsn                  uint64
}

const enumBatchBufferSize = 64 * 1024

// enumUSNData issues one FSCTL_ENUM_USN_DATA call starting at
// startFRN, returning the raw page for usnrecord.ParseMFTEnumBatch to
// decode.
func enumUSNData(handle windows.Handle, startFRN uint64) ([]byte, error) {
	input := mftEnumDataV0{
		StartFileReferenceNumber: startFRN,
		LowUsn:                   0,
		HighUsn:                  ^uint64(0),
	}

	inBuf := make([]byte, 24)
	binary.LittleEndian.PutUint64(inBuf[0:8], input.StartFileReferenceNumber)
	binary.LittleEndian.PutUint64(inBuf[8:16], input.LowUsn)
	binary.LittleEndian.PutUint64(inBuf[16:24], input.HighUsn)

	out := make([]byte, enumBatchBufferSize)
	var returned uint32

	err := windows.DeviceIoControl(
		handle,
		fsctlEnumUSNData,
		&inBuf[0], uint32(len(inBuf)),
		&out[0], uint32(len(out)),
		&returned,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return out[:returned], nil
}
