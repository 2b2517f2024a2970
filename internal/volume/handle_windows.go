//go:build windows

package volume

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"

	"github.com/marmos91/usnwatcher/internal/errs"
)

type winHandle struct {
	letter byte
	handle windows.Handle
	once   sync.Once
	closed error
}

// Open acquires a read handle to "\\.\<letter>:" with the sharing flags
// required to read a volume that is in active use, and verifies the
// volume is NTFS before returning.
//
// It fails with errs.ErrPermissionDenied when CreateFile is denied
// access (the process needs administrator rights to open a raw volume),
// errs.ErrNotFound when the letter names no volume, and errs.ErrNotNtfs
// when the volume's filesystem name is not "NTFS".
func Open(letter byte) (Handle, error) {
	path := fmt.Sprintf(`\\.\%c:`, letter)
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "encoding volume path", err)
	}

	h, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		switch err {
		case windows.ERROR_ACCESS_DENIED:
			return nil, errs.Wrap(errs.ErrPermissionDenied, fmt.Sprintf("opening %s requires administrator rights", path), err)
		case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
			return nil, errs.Wrap(errs.ErrNotFound, fmt.Sprintf("no volume at %s", path), err)
		default:
			return nil, errs.Wrap(errs.ErrIO, fmt.Sprintf("opening %s", path), err)
		}
	}

	fsName, err := queryFileSystemName(h, path)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	if fsName != "NTFS" {
		windows.CloseHandle(h)
		return nil, errs.New(errs.ErrNotNtfs, fmt.Sprintf("%s is formatted %s, not NTFS", path, fsName))
	}

	return &winHandle{letter: letter, handle: h}, nil
}

func queryFileSystemName(h windows.Handle, path string) (string, error) {
	rootPtr, err := windows.UTF16PtrFromString(fmt.Sprintf(`%c:\`, path[4]))
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "encoding volume root path", err)
	}

	var fsNameBuf [windows.MAX_PATH + 1]uint16
	var volumeNameBuf [windows.MAX_PATH + 1]uint16
	var serialNumber, maxComponentLen, fsFlags uint32

	err = windows.GetVolumeInformation(
		rootPtr,
		&volumeNameBuf[0], uint32(len(volumeNameBuf)),
		&serialNumber,
		&maxComponentLen,
		&fsFlags,
		&fsNameBuf[0], uint32(len(fsNameBuf)),
	)
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "querying volume information", err)
	}

	return windows.UTF16ToString(fsNameBuf[:]), nil
}

// RawHandle exposes the underlying OS handle for the journal reader,
// which needs it to issue DeviceIoControl calls directly.
func (h *winHandle) RawHandle() windows.Handle { return h.handle }

func (h *winHandle) Letter() byte { return h.letter }

func (h *winHandle) Release() error {
	h.once.Do(func() {
		h.closed = windows.CloseHandle(h.handle)
	})
	return h.closed
}
