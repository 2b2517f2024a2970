//go:build !windows

package main

import (
	"fmt"

	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/journal"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/volume"
)

type platformDeps struct {
	handle      volume.Handle
	reader      journal.Reader
	entrySource pathresolver.EntrySource
}

// buildPlatformDeps always fails on non-Windows platforms: the USN
// change journal, and every FSCTL this daemon issues against it, are
// NTFS/Windows-specific.
func buildPlatformDeps(volumeLetter byte) (*platformDeps, error) {
	return nil, errs.New(errs.ErrNotNtfs, fmt.Sprintf("usnwatcher requires Windows and an NTFS volume; cannot open %c: on this platform", volumeLetter))
}
