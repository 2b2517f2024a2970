package pathresolver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/usnwatcher/internal/appdata"
	"github.com/marmos91/usnwatcher/internal/logger"
)

const cacheSubfolder = "usn-watcher"

// cacheMaxAge bounds how stale a cached snapshot may be before it is
// treated as absent rather than loaded.
const cacheMaxAge = 24 * time.Hour

func cachePath(volumeLetter byte) string {
	return filepath.Join(appdata.Dir(cacheSubfolder), fmt.Sprintf("cache-%c.bin", volumeLetter))
}

// TryLoadCache loads a previously persisted FRN→path snapshot for
// volumeLetter if present and younger than cacheMaxAge. A corrupt file is
// deleted. Returns whether a fresh snapshot was loaded.
func (r *Resolver) TryLoadCache(volumeLetter byte) bool {
	path := cachePath(volumeLetter)

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > cacheMaxAge {
		return false
	}

	loaded, err := loadCacheFile(path)
	if err != nil {
		logger.Warn("pathresolver: cache %s is corrupt, removing: %v", path, err)
		_ = os.Remove(path)
		return false
	}

	r.mu.Lock()
	for frn, p := range loaded {
		r.byFRN[frn] = p
	}
	r.mu.Unlock()

	logger.Info("pathresolver: loaded %d cached paths from %s", len(loaded), path)
	return true
}

// SaveCache writes the current map to the persistent snapshot location.
// Best-effort: failures are logged and swallowed.
func (r *Resolver) SaveCache(volumeLetter byte) {
	path := cachePath(volumeLetter)

	r.mu.Lock()
	snapshot := make(map[uint64]string, len(r.byFRN))
	for frn, p := range r.byFRN {
		snapshot[frn] = p
	}
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("pathresolver: failed to create cache directory: %v", err)
		return
	}

	if err := saveCacheFile(path, snapshot); err != nil {
		logger.Warn("pathresolver: failed to save cache to %s: %v", path, err)
	}
}

// loadCacheFile parses the length-prefixed binary cache format: a 32-bit
// count followed by that many (64-bit FRN, length-prefixed UTF-8 path)
// pairs.
func loadCacheFile(path string) (map[uint64]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading count: %w", err)
	}

	result := make(map[uint64]string, count)
	for i := uint32(0); i < count; i++ {
		var frn uint64
		if err := binary.Read(r, binary.LittleEndian, &frn); err != nil {
			return nil, fmt.Errorf("reading frn %d: %w", i, err)
		}

		var pathLen uint32
		if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
			return nil, fmt.Errorf("reading path length %d: %w", i, err)
		}

		buf := make([]byte, pathLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading path %d: %w", i, err)
		}

		result[frn] = string(buf)
	}

	return result, nil
}

func saveCacheFile(path string, entries map[uint64]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		f.Close()
		return err
	}

	for frn, p := range entries {
		if err := binary.Write(w, binary.LittleEndian, frn); err != nil {
			f.Close()
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(p))); err != nil {
			f.Close()
			return err
		}
		if _, err := w.WriteString(p); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
