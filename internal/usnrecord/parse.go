package usnrecord

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"
)

// recordPrefixSize is the fixed-size prefix of a USN_RECORD_V2 preceding
// the variable-length filename: RecordLength, MajorVersion, MinorVersion,
// FileReferenceNumber, ParentFileReferenceNumber, Usn, TimeStamp, Reason,
// SourceInfo, SecurityId, FileAttributes, FileNameLength, FileNameOffset.
const recordPrefixSize = 60

// supportedMajorVersion is the only USN_RECORD major version this reader
// decodes; records from other major versions are silently skipped.
const supportedMajorVersion = 2

// windowsEpochOffset100ns is the number of 100ns intervals between the
// Windows FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const windowsEpochOffset100ns = 116444736000000000

// FiletimeToUTC converts a Windows FILETIME (100ns intervals since
// 1601-01-01) into a UTC time.Time.
func FiletimeToUTC(filetime uint64) time.Time {
	unix100ns := int64(filetime) - windowsEpochOffset100ns
	return time.Unix(0, unix100ns*100).UTC()
}

// ParseBatch walks the raw IOCTL output buffer produced by a journal read.
// The first 8 bytes are the "next USN" cursor value; records begin at
// offset 8. It returns the next-USN cursor and every successfully decoded
// event in strict USN order.
//
// Record-walk soundness: it consumes exactly RecordLength bytes per record,
// rounded up to 8-byte alignment as journal records are always emitted
// aligned. If a RecordLength is implausible (< 60 or larger than the
// remaining buffer), parsing stops at that point without advancing past
// the corrupt region — the caller treats this as errs.ErrCorruptBatch and
// keeps whatever events were already decoded.
func ParseBatch(buf []byte) (nextUSN uint64, events []*Event, corrupt bool, err error) {
	if len(buf) < 8 {
		return 0, nil, false, fmt.Errorf("usn batch buffer too small: %d bytes", len(buf))
	}

	nextUSN = binary.LittleEndian.Uint64(buf[0:8])

	offset := 8
	for offset < len(buf) {
		remaining := len(buf) - offset
		if remaining < recordPrefixSize {
			// Trailing zero padding after the last record; not corruption.
			break
		}

		recordLength := binary.LittleEndian.Uint32(buf[offset : offset+4])
		if recordLength == 0 {
			break
		}
		if recordLength < recordPrefixSize || int(recordLength) > remaining {
			return nextUSN, events, true, nil
		}

		record := buf[offset : offset+int(recordLength)]

		majorVersion := binary.LittleEndian.Uint16(record[4:6])
		if majorVersion == supportedMajorVersion {
			ev, decodeErr := decodeRecord(record)
			if decodeErr != nil {
				return nextUSN, events, true, nil
			}
			events = append(events, ev)
		}

		offset += alignUp8(int(recordLength))
	}

	return nextUSN, events, false, nil
}

func alignUp8(n int) int {
	return (n + 7) &^ 7
}

// MFTRecord is the subset of a USN_RECORD_V2 the MFT enumerator needs:
// identity and parentage, but none of the change-journal fields (Usn,
// Reason, TimeStamp) that a file's MFT entry doesn't carry meaningfully
// outside the journal.
type MFTRecord struct {
	FRN         uint64
	ParentFRN   uint64
	Name        string
	IsDirectory bool
}

// ParseMFTEnumBatch walks the raw output of FSCTL_ENUM_USN_DATA: an
// 8-byte "next starting FRN" cursor followed by a run of USN_RECORD_V2
// entries, one per MFT record. The record layout is identical to a
// journal batch's, so the walk shares ParseBatch's alignment and
// bounds-checking rules; unlike ParseBatch, corruption here simply ends
// the page early rather than signalling errs.ErrCorruptBatch — a bulk
// enumeration is best-effort per Resolver.Populate's contract.
func ParseMFTEnumBatch(buf []byte) (nextFRN uint64, records []MFTRecord, err error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("mft enum buffer too small: %d bytes", len(buf))
	}

	nextFRN = binary.LittleEndian.Uint64(buf[0:8])

	offset := 8
	for offset < len(buf) {
		remaining := len(buf) - offset
		if remaining < recordPrefixSize {
			break
		}

		recordLength := binary.LittleEndian.Uint32(buf[offset : offset+4])
		if recordLength == 0 {
			break
		}
		if recordLength < recordPrefixSize || int(recordLength) > remaining {
			break
		}

		record := buf[offset : offset+int(recordLength)]

		majorVersion := binary.LittleEndian.Uint16(record[4:6])
		if majorVersion == supportedMajorVersion {
			rec, decodeErr := decodeMFTRecord(record)
			if decodeErr == nil {
				records = append(records, rec)
			}
		}

		offset += alignUp8(int(recordLength))
	}

	return nextFRN, records, nil
}

func decodeMFTRecord(record []byte) (MFTRecord, error) {
	frn := binary.LittleEndian.Uint64(record[8:16])
	parentFRN := binary.LittleEndian.Uint64(record[16:24])
	attributes := binary.LittleEndian.Uint32(record[52:56])
	fileNameLength := binary.LittleEndian.Uint16(record[56:58])
	fileNameOffset := binary.LittleEndian.Uint16(record[58:60])

	nameEnd := int(fileNameOffset) + int(fileNameLength)
	if int(fileNameOffset) < 0 || nameEnd > len(record) {
		return MFTRecord{}, fmt.Errorf("mft record filename out of bounds")
	}

	return MFTRecord{
		FRN:         frn,
		ParentFRN:   parentFRN,
		Name:        decodeUTF16LE(record[fileNameOffset:nameEnd]),
		IsDirectory: attributes&fileAttributeDirectory != 0,
	}, nil
}

func decodeRecord(record []byte) (*Event, error) {
	frn := binary.LittleEndian.Uint64(record[8:16])
	parentFRN := binary.LittleEndian.Uint64(record[16:24])
	usn := int64(binary.LittleEndian.Uint64(record[24:32]))
	filetime := binary.LittleEndian.Uint64(record[32:40])
	reason := binary.LittleEndian.Uint32(record[40:44])
	// SourceInfo: record[44:48], SecurityId: record[48:52] — not surfaced.
	attributes := binary.LittleEndian.Uint32(record[52:56])
	fileNameLength := binary.LittleEndian.Uint16(record[56:58])
	fileNameOffset := binary.LittleEndian.Uint16(record[58:60])

	nameEnd := int(fileNameOffset) + int(fileNameLength)
	if int(fileNameOffset) < 0 || nameEnd > len(record) {
		return nil, fmt.Errorf("usn record filename out of bounds")
	}

	name := decodeUTF16LE(record[fileNameOffset:nameEnd])

	return &Event{
		USN:         usn,
		Timestamp:   FiletimeToUTC(filetime),
		FRN:         frn,
		ParentFRN:   parentFRN,
		FileName:    name,
		Reasons:     DecodeReasons(reason),
		ReasonRaw:   reason,
		IsDirectory: attributes&fileAttributeDirectory != 0,
		Attributes:  attributes,
	}, nil
}

func decodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(units))
}
