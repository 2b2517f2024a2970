// Package cursor persists the daemon's resume point: the last-emitted USN
// and the journal ID it was read from.
//
// All IO here is best-effort: a failed Save or Load is logged and
// swallowed, never propagated, because losing the cursor degrades to
// "start from live tail with a gap notice" rather than to failure of the
// daemon (see the orchestrator's startup decision tree).
package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/usnwatcher/internal/appdata"
	"github.com/marmos91/usnwatcher/internal/logger"
)

const subfolder = "usn-watcher"
const fileName = "cursor.json"

// Record is the persisted cursor snapshot.
type Record struct {
	Volume    string    `json:"volume"`
	JournalID string    `json:"journalId"` // "0x<16 hex>"
	NextUSN   int64     `json:"nextUsn"`
	SavedAt   time.Time `json:"savedAt"`
}

// Store reads and writes the cursor snapshot for one volume.
type Store struct {
	// path overrides the default appdata location; used by tests.
	path string
}

// New returns a Store using the default per-user application-data
// location.
func New() *Store {
	return &Store{}
}

// NewAt returns a Store that reads/writes the given file path directly,
// bypassing appdata resolution. Used by tests.
func NewAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) filePath() string {
	if s.path != "" {
		return s.path
	}
	return filepath.Join(appdata.Dir(subfolder), fileName)
}

// ensureDir creates the directory the cursor file lives in. For the
// default appdata location this delegates to appdata.EnsureDir; a
// test-supplied path (see NewAt) may point anywhere, so it falls back to
// creating that path's parent directly.
func (s *Store) ensureDir() error {
	if s.path == "" {
		_, err := appdata.EnsureDir(subfolder)
		return err
	}
	return os.MkdirAll(filepath.Dir(s.path), 0o755)
}

// Save writes {volume, journalId, nextUsn, savedAt} as JSON. Failures are
// logged and swallowed.
func (s *Store) Save(volume string, journalID uint64, nextUSN int64) {
	path := s.filePath()
	if err := s.ensureDir(); err != nil {
		logger.Warn("cursor: failed to create directory for %s: %v", path, err)
		return
	}

	record := Record{
		Volume:    volume,
		JournalID: fmt.Sprintf("0x%016x", journalID),
		NextUSN:   nextUSN,
		SavedAt:   time.Now().UTC(),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		logger.Warn("cursor: failed to marshal record: %v", err)
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warn("cursor: failed to write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Warn("cursor: failed to replace %s: %v", path, err)
	}
}

// Load reads the cursor snapshot for volume. It returns (nil, false) —
// not an error — when the file is missing, names a different volume, or
// fails to parse; callers treat all three as "no stored cursor".
func (s *Store) Load(volume string) (*Record, bool) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cursor: failed to read %s: %v", s.filePath(), err)
		}
		return nil, false
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		logger.Warn("cursor: failed to parse %s: %v", s.filePath(), err)
		return nil, false
	}

	if record.Volume != volume {
		return nil, false
	}

	return &record, true
}

// ParseJournalID parses the "0x<16 hex>" form back into a uint64.
func ParseJournalID(hex string) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(hex, "0x%016x", &id)
	return id, err
}
