package pathresolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

func createEvent(frn, parent uint64, name string) *usnrecord.Event {
	return &usnrecord.Event{
		FRN:       frn,
		ParentFRN: parent,
		FileName:  name,
		ReasonRaw: usnrecord.ReasonFileCreate,
	}
}

func TestResolve_KnownFRNFillsFullPath(t *testing.T) {
	r := New()
	r.byFRN[0x1000] = `C:\Users\alice\report.docx`

	event := &usnrecord.Event{FRN: 0x1000}
	ok := r.Resolve(event)

	assert.True(t, ok)
	assert.Equal(t, `C:\Users\alice\report.docx`, event.FullPath)
}

func TestResolve_UnknownFRNWithKnownParentSynthesizes(t *testing.T) {
	r := New()
	r.byFRN[0x2000] = `C:\Users\alice`

	event := &usnrecord.Event{FRN: 0x3000, ParentFRN: 0x2000, FileName: "notes.txt"}
	ok := r.Resolve(event)

	require.True(t, ok)
	assert.Equal(t, `C:\Users\alice\notes.txt`, event.FullPath)

	// the synthesized mapping is cached for future lookups
	path, cached := r.Lookup(0x3000)
	assert.True(t, cached)
	assert.Equal(t, `C:\Users\alice\notes.txt`, path)
}

func TestResolve_UnresolvedParentReportsFailure(t *testing.T) {
	r := New()

	event := &usnrecord.Event{FRN: 0x9999, ParentFRN: 0x8888, FileName: "ghost.tmp"}
	ok := r.Resolve(event)

	assert.False(t, ok)
	assert.Empty(t, event.FullPath)
}

func TestUpdate_CreateAddsMapping(t *testing.T) {
	r := New()
	r.byFRN[0x1] = `C:\data`

	event := createEvent(0x2, 0x1, "new.log")
	r.Update(event)

	path, ok := r.Lookup(0x2)
	require.True(t, ok)
	assert.Equal(t, `C:\data\new.log`, path)
	assert.Equal(t, `C:\data\new.log`, event.FullPath)
}

func TestUpdate_CreateWithUnresolvedParentIsNoOp(t *testing.T) {
	r := New()

	event := createEvent(0x2, 0x1, "new.log")
	r.Update(event)

	_, ok := r.Lookup(0x2)
	assert.False(t, ok)
}

func TestUpdate_DeleteRemovesMapping(t *testing.T) {
	r := New()
	r.byFRN[0x5] = `C:\data\gone.txt`

	event := &usnrecord.Event{FRN: 0x5, ReasonRaw: usnrecord.ReasonFileDelete}
	r.Update(event)

	_, ok := r.Lookup(0x5)
	assert.False(t, ok)
}

func TestUpdate_RenamePairProducesOldAndNewPath(t *testing.T) {
	r := New()
	r.byFRN[0x10] = `C:\data`
	r.byFRN[0x20] = `C:\data\draft.docx`

	oldNameEvent := &usnrecord.Event{
		FRN: 0x20, ParentFRN: 0x10, FileName: "draft.docx",
		ReasonRaw: usnrecord.ReasonRenameOldName,
	}
	r.Update(oldNameEvent)

	newNameEvent := &usnrecord.Event{
		FRN: 0x20, ParentFRN: 0x10, FileName: "final.docx",
		ReasonRaw: usnrecord.ReasonRenameNewName,
	}
	r.Update(newNameEvent)

	assert.Equal(t, `C:\data\draft.docx`, newNameEvent.OldPath)
	assert.Equal(t, `C:\data\final.docx`, newNameEvent.NewPath)
	assert.Equal(t, `C:\data\final.docx`, newNameEvent.FullPath)

	path, ok := r.Lookup(0x20)
	require.True(t, ok)
	assert.Equal(t, `C:\data\final.docx`, path)
}

func TestUpdate_RenameNewNameWithoutPriorOldNameStillResolves(t *testing.T) {
	// RENAME_OLD_NAME was missed (e.g. startup mid-rename); the resolver
	// still produces a usable NewPath from the live map, just no OldPath.
	r := New()
	r.byFRN[0x10] = `C:\data`

	newNameEvent := &usnrecord.Event{
		FRN: 0x99, ParentFRN: 0x10, FileName: "final.docx",
		ReasonRaw: usnrecord.ReasonRenameNewName,
	}
	r.Update(newNameEvent)

	assert.Empty(t, newNameEvent.OldPath)
	assert.Equal(t, `C:\data\final.docx`, newNameEvent.NewPath)
}

func TestUpdate_CreateThenDeleteLeavesNoResidue(t *testing.T) {
	r := New()
	r.byFRN[0x1] = `C:\data`

	created := createEvent(0x2, 0x1, "temp.tmp")
	r.Update(created)

	deleted := &usnrecord.Event{FRN: 0x2, ReasonRaw: usnrecord.ReasonFileDelete}
	r.Update(deleted)

	assert.Equal(t, 1, r.Size())
	_, ok := r.Lookup(0x2)
	assert.False(t, ok)
}

type fakeSource struct {
	entries []MFTEntry
}

func (f fakeSource) Each(ctx context.Context, fn func(MFTEntry) error) error {
	for _, e := range f.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func TestPopulate_BuildsPathsFromParentChain(t *testing.T) {
	source := fakeSource{entries: []MFTEntry{
		{FRN: RootFRN, ParentFRN: RootFRN, Name: "", IsDirectory: true},
		{FRN: 0x100, ParentFRN: RootFRN, Name: "Users", IsDirectory: true},
		{FRN: 0x200, ParentFRN: 0x100, Name: "alice", IsDirectory: true},
		{FRN: 0x300, ParentFRN: 0x200, Name: "report.docx", IsDirectory: false},
	}}

	r := New()
	n, err := r.Populate(context.Background(), 'C', source)

	require.NoError(t, err)
	assert.Equal(t, 4, n)

	path, ok := r.Lookup(0x300)
	require.True(t, ok)
	assert.Equal(t, `C:\Users\alice\report.docx`, path)
}

func TestPopulate_DanglingParentIsSkippedNotFatal(t *testing.T) {
	source := fakeSource{entries: []MFTEntry{
		{FRN: RootFRN, ParentFRN: RootFRN, Name: "", IsDirectory: true},
		// 0x500's parent (0x400) was never observed.
		{FRN: 0x500, ParentFRN: 0x400, Name: "orphan.txt", IsDirectory: false},
	}}

	r := New()
	n, err := r.Populate(context.Background(), 'C', source)

	require.NoError(t, err)
	assert.Equal(t, 1, n) // only root placed

	_, ok := r.Lookup(0x500)
	assert.False(t, ok)
}

func TestPopulate_MergesWithoutClearingExistingEntries(t *testing.T) {
	r := New()
	r.byFRN[0x999] = `C:\preexisting\path.txt`

	source := fakeSource{entries: []MFTEntry{
		{FRN: RootFRN, ParentFRN: RootFRN, Name: "", IsDirectory: true},
		{FRN: 0x100, ParentFRN: RootFRN, Name: "data", IsDirectory: true},
	}}

	_, err := r.Populate(context.Background(), 'C', source)
	require.NoError(t, err)

	path, ok := r.Lookup(0x999)
	require.True(t, ok)
	assert.Equal(t, `C:\preexisting\path.txt`, path)
}
