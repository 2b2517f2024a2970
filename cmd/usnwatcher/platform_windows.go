//go:build windows

package main

import (
	"golang.org/x/sys/windows"

	"github.com/marmos91/usnwatcher/internal/journal"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/volume"
)

type platformDeps struct {
	handle      volume.Handle
	reader      journal.Reader
	entrySource pathresolver.EntrySource
}

// rawHandleProvider is satisfied by volume.Open's concrete *winHandle,
// which exposes the OS handle the journal reader and MFT enumerator
// issue DeviceIoControl calls against.
type rawHandleProvider interface {
	RawHandle() windows.Handle
}

func buildPlatformDeps(volumeLetter byte) (*platformDeps, error) {
	handle, err := volume.Open(volumeLetter)
	if err != nil {
		return nil, err
	}

	raw := handle.(rawHandleProvider).RawHandle()

	return &platformDeps{
		handle:      handle,
		reader:      journal.NewReader(raw),
		entrySource: journal.NewMFTEnumerator(raw),
	}, nil
}
