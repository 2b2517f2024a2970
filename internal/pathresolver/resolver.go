// Package pathresolver maintains the volume-wide FRN→absolute-path map:
// bootstrapped by an MFT enumeration, kept current by observing the
// create/rename/delete events the journal reader produces.
//
// Concurrency is grounded on the teacher's pkg/registry.Registry: a
// single mutex guards map membership, with short critical sections, so
// that Resolve/Update calls from the main loop never block behind the
// populate worker's long-running MFT scan.
package pathresolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// RootFRN is the well-known file reference number of an NTFS volume's
// root directory.
const RootFRN uint64 = 5

// maxParentChainHops bounds the walk up the parent chain when building a
// path from MFT entries, defeating cycles introduced by corruption or the
// root directory's self-reference.
const maxParentChainHops = 1024

// MFTEntry is one record observed during a full MFT enumeration: just
// enough to place the file in the directory tree.
type MFTEntry struct {
	FRN         uint64
	ParentFRN   uint64
	Name        string
	IsDirectory bool
}

// EntrySource streams MFT entries to fn. Implementations should treat
// permission and IO errors on any single entry as recoverable — by
// simply not calling fn for that entry — and only return a non-nil error
// for a failure that aborts the whole enumeration (e.g. the volume
// control call itself failing).
type EntrySource interface {
	Each(ctx context.Context, fn func(MFTEntry) error) error
}

// Resolver owns the FRN→path map and the pending-rename table.
type Resolver struct {
	mu            sync.Mutex
	byFRN         map[uint64]string
	pendingRename map[uint64]string
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{
		byFRN:         make(map[uint64]string),
		pendingRename: make(map[uint64]string),
	}
}

// Resolve fills event.FullPath from the map if the event's FRN is
// present. Otherwise, if the parent FRN is present, it synthesizes
// parentPath + "\" + filename, writes that synthesized mapping back into
// the map to accelerate future lookups, and reports success. Otherwise
// it reports failure — the event is still emitted with FullPath unset.
func (r *Resolver) Resolve(event *usnrecord.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path, ok := r.byFRN[event.FRN]; ok {
		event.FullPath = path
		return true
	}

	if parentPath, ok := r.byFRN[event.ParentFRN]; ok {
		synthesized := joinPath(parentPath, event.FileName)
		r.byFRN[event.FRN] = synthesized
		event.FullPath = synthesized
		return true
	}

	return false
}

// Update keeps the map (and pending-rename table) in sync with an
// observed event. Callers invoke this for delete, rename-old-name,
// rename-new-name, and create events — see the orchestrator's main loop.
func (r *Resolver) Update(event *usnrecord.Event) {
	switch {
	case event.IsDelete():
		r.updateDelete(event)
	case event.IsRenameOldName():
		r.updateRenameOldName(event)
	case event.IsRenameNewName():
		r.updateRenameNewName(event)
	case event.IsCreate():
		r.updateCreate(event)
	}
}

func (r *Resolver) updateDelete(event *usnrecord.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byFRN, event.FRN)
}

func (r *Resolver) updateRenameOldName(event *usnrecord.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path, ok := r.byFRN[event.FRN]; ok {
		r.pendingRename[event.FRN] = path
		return
	}
	if parentPath, ok := r.byFRN[event.ParentFRN]; ok {
		r.pendingRename[event.FRN] = joinPath(parentPath, event.FileName)
	}
}

func (r *Resolver) updateRenameNewName(event *usnrecord.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newPath := event.FileName
	if parentPath, ok := r.byFRN[event.ParentFRN]; ok {
		newPath = joinPath(parentPath, event.FileName)
	}

	if oldPath, ok := r.pendingRename[event.FRN]; ok {
		event.OldPath = oldPath
		delete(r.pendingRename, event.FRN)
	}

	event.FullPath = newPath
	event.NewPath = newPath
	r.byFRN[event.FRN] = newPath
}

func (r *Resolver) updateCreate(event *usnrecord.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parentPath, ok := r.byFRN[event.ParentFRN]
	if !ok {
		return
	}

	path := joinPath(parentPath, event.FileName)
	r.byFRN[event.FRN] = path
	event.FullPath = path
}

// Lookup returns the map entry for frn, for tests and diagnostics.
func (r *Resolver) Lookup(frn uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.byFRN[frn]
	return path, ok
}

// Size returns the number of entries currently mapped.
func (r *Resolver) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byFRN)
}

func joinPath(parent, name string) string {
	if strings.HasSuffix(parent, `\`) {
		return parent + name
	}
	return parent + `\` + name
}

// Populate performs a full MFT enumeration via source, builds an
// absolute path for every entry by walking its parent chain, and merges
// the result into the live map under a single short critical section —
// it reads the MFT into a local staging map first so that concurrent
// Resolve/Update calls from the main loop are never blocked by the scan
// itself.
//
// Best-effort: an entry this walk cannot place (a dangling parent
// reference, or one beyond maxParentChainHops) is simply skipped. Any
// error from source itself (the enumeration control call failed outright)
// is returned, but whatever entries were collected before the failure
// are still merged in.
func (r *Resolver) Populate(ctx context.Context, volumeLetter byte, source EntrySource) (int, error) {
	staging := make(map[uint64]MFTEntry)

	enumErr := source.Each(ctx, func(e MFTEntry) error {
		staging[e.FRN] = e
		return nil
	})

	built := make(map[uint64]string, len(staging))
	for frn := range staging {
		if path, ok := buildPath(volumeLetter, frn, staging); ok {
			built[frn] = path
		}
	}

	r.mu.Lock()
	for frn, path := range built {
		r.byFRN[frn] = path
	}
	r.mu.Unlock()

	return len(built), enumErr
}

// buildPath walks from frn up through staging's parent links to the
// volume root, producing "<letter>:\seg\seg\...\name". It returns false
// if the chain is dangling (references an entry not present in staging)
// or exceeds maxParentChainHops.
func buildPath(volumeLetter byte, frn uint64, staging map[uint64]MFTEntry) (string, bool) {
	if frn == RootFRN {
		return fmt.Sprintf(`%c:\`, volumeLetter), true
	}

	var segments []string
	visited := make(map[uint64]bool)
	cur := frn

	for hops := 0; hops < maxParentChainHops; hops++ {
		entry, ok := staging[cur]
		if !ok {
			return "", false
		}
		segments = append(segments, entry.Name)

		if visited[cur] {
			return "", false // cycle
		}
		visited[cur] = true

		cur = entry.ParentFRN
		if cur == RootFRN || cur == 0 {
			break
		}
	}
	if cur != RootFRN && cur != 0 {
		return "", false // chain longer than maxParentChainHops
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return fmt.Sprintf(`%c:\`, volumeLetter) + strings.Join(segments, `\`), true
}
