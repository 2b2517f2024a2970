package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/usnwatcher/internal/cursor"
	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/events"
	"github.com/marmos91/usnwatcher/internal/journal"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// fakeReader mirrors internal/journal's test double but lives here since
// the orchestrator only depends on the exported Reader interface.
type fakeReader struct {
	metadata    journal.Metadata
	setOutcome  journal.CursorOutcome
	setErr      error
	cursor      uint64
	batches     [][]*usnrecord.Event
	batchErr    error
	initializeN int
}

var _ journal.Reader = (*fakeReader)(nil)

func (f *fakeReader) Initialize() (journal.Metadata, error) {
	f.initializeN++
	f.cursor = f.metadata.NextUSN
	return f.metadata, nil
}

func (f *fakeReader) SetCursor(storedUSN uint64) (journal.Metadata, journal.CursorOutcome, error) {
	if f.setErr != nil {
		return journal.Metadata{}, journal.Resumed, f.setErr
	}
	if f.setOutcome == journal.Wrapped {
		f.cursor = f.metadata.FirstUSN
	} else {
		f.cursor = storedUSN
	}
	return f.metadata, f.setOutcome, nil
}

func (f *fakeReader) ReadBatch(reasonMask uint32) ([]*usnrecord.Event, error) {
	if f.batchErr != nil {
		err := f.batchErr
		f.batchErr = nil
		return nil, err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeReader) JournalID() uint64 { return f.metadata.JournalID }
func (f *fakeReader) Cursor() uint64    { return f.cursor }
func (f *fakeReader) Close() error      { return nil }

func newTestStore(t *testing.T) *cursor.Store {
	t.Helper()
	return cursor.NewAt(filepath.Join(t.TempDir(), "cursor.json"))
}

func TestStartup_NoStoredCursorInitializes(t *testing.T) {
	store := newTestStore(t)
	reader := &fakeReader{metadata: journal.Metadata{JournalID: 0x1, FirstUSN: 10, NextUSN: 100}}

	outcome, err := Startup(reader, store, "C")
	require.NoError(t, err)
	assert.False(t, outcome.EmitGap)
	assert.False(t, outcome.CursorReset)
	assert.Equal(t, uint64(0x1), outcome.Metadata.JournalID)
}

func TestStartup_ResumedWhenCursorStillWithinRetention(t *testing.T) {
	store := newTestStore(t)
	store.Save("C", 0x1, 500)

	reader := &fakeReader{
		metadata:   journal.Metadata{JournalID: 0x1, FirstUSN: 10, NextUSN: 900},
		setOutcome: journal.Resumed,
	}

	outcome, err := Startup(reader, store, "C")
	require.NoError(t, err)
	assert.False(t, outcome.EmitGap)
	assert.False(t, outcome.CursorReset)
}

func TestStartup_WrappedEmitsGapFromStoredCursorToNewFirstUSN(t *testing.T) {
	store := newTestStore(t)
	store.Save("C", 0x1, 50)

	reader := &fakeReader{
		metadata:   journal.Metadata{JournalID: 0x1, FirstUSN: 800, NextUSN: 900},
		setOutcome: journal.Wrapped,
	}

	outcome, err := Startup(reader, store, "C")
	require.NoError(t, err)
	assert.True(t, outcome.EmitGap)
	assert.EqualValues(t, 50, outcome.GapFrom)
	assert.EqualValues(t, 800, outcome.GapTo)
	assert.False(t, outcome.CursorReset)
}

func TestStartup_JournalIDMismatchResetsCursor(t *testing.T) {
	store := newTestStore(t)
	store.Save("C", 0x1, 500)

	reader := &fakeReader{
		metadata:   journal.Metadata{JournalID: 0x2, FirstUSN: 10, NextUSN: 900},
		setOutcome: journal.Resumed,
	}

	outcome, err := Startup(reader, store, "C")
	require.NoError(t, err)
	assert.True(t, outcome.CursorReset)
	assert.False(t, outcome.EmitGap)

	// SetCursor left r.cursor at the stored USN (500) relative to the new
	// journal; an Initialize call must reposition it to the new
	// journal's live tail before Run ever sees the reader.
	assert.EqualValues(t, 1, reader.initializeN)
	assert.EqualValues(t, 900, reader.Cursor())
	assert.EqualValues(t, 900, outcome.Metadata.NextUSN)
}

func TestStartup_UnparseableStoredJournalIDFallsBackToInitialize(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(t.TempDir(), "cursor.json")
	store = cursor.NewAt(path)
	require.NoError(t, os.WriteFile(path, []byte(`{"volume":"C","journalId":"not-hex","nextUsn":10}`), 0o644))

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 0x9, FirstUSN: 1, NextUSN: 2}}

	outcome, err := Startup(reader, store, "C")
	require.NoError(t, err)
	assert.False(t, outcome.CursorReset)
	assert.False(t, outcome.EmitGap)
}

func newOptions(emit *[][]byte) Options {
	resolver := pathresolver.New()
	return Options{
		VolumeLetter:   'C',
		PollInterval:   10 * time.Millisecond,
		DebounceWindow: pathresolverMinWindow(),
		Resolver:       resolver,
		Filter:         nil,
		Emit: func(line []byte) {
			*emit = append(*emit, line)
		},
	}
}

// pathresolverMinWindow keeps the coalescer's debounce window at its
// floor so tests flush quickly without waiting on DefaultWindow.
func pathresolverMinWindow() time.Duration { return 10 * time.Millisecond }

// rootOnlySource is an EntrySource yielding just the volume root, so
// Populate maps RootFRN to `C:\`.
type rootOnlySource struct{}

func (rootOnlySource) Each(ctx context.Context, fn func(pathresolver.MFTEntry) error) error {
	return fn(pathresolver.MFTEntry{FRN: pathresolver.RootFRN, ParentFRN: pathresolver.RootFRN, IsDirectory: true})
}

func TestProcess_CreateThenRenameResolvesNewPath(t *testing.T) {
	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)
	defer o.coalescer.Dispose(joinTimeout)

	_, err := opts.Resolver.Populate(context.Background(), 'C', rootOnlySource{})
	require.NoError(t, err)

	create := &usnrecord.Event{FRN: 10, ParentFRN: pathresolver.RootFRN, FileName: "a.txt", ReasonRaw: usnrecord.ReasonFileCreate}
	o.process(create)
	assert.Equal(t, `C:\a.txt`, create.FullPath)

	renameOld := &usnrecord.Event{FRN: 10, ParentFRN: pathresolver.RootFRN, FileName: "a.txt", ReasonRaw: usnrecord.ReasonRenameOldName}
	o.process(renameOld)

	renameNew := &usnrecord.Event{FRN: 10, ParentFRN: pathresolver.RootFRN, FileName: "b.txt", ReasonRaw: usnrecord.ReasonRenameNewName}
	o.process(renameNew)

	assert.Equal(t, `C:\a.txt`, renameNew.OldPath)
	assert.Equal(t, `C:\b.txt`, renameNew.NewPath)
	assert.Equal(t, `C:\b.txt`, renameNew.FullPath)
}

func TestOnFlushed_FilterDropSuppressesEmit(t *testing.T) {
	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)
	opts.Filter = func(*usnrecord.Event) bool { return false }

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)
	defer o.coalescer.Dispose(joinTimeout)

	o.onFlushed(&usnrecord.Event{FRN: 1, FileName: "x"})
	assert.Empty(t, emitted)
	assert.Zero(t, o.EventCount())
}

func TestOnFlushed_PassingEventIsEmittedAndCounted(t *testing.T) {
	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)
	defer o.coalescer.Dispose(joinTimeout)

	o.onFlushed(&usnrecord.Event{FRN: 1, FileName: "x", Reasons: []string{"CLOSE"}})
	require.Len(t, emitted, 1)
	assert.EqualValues(t, 1, o.EventCount())
}

func TestRun_ExitsCleanlyOnContextCancellation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Run(ctx, StartupOutcome{Metadata: reader.metadata})
	require.NoError(t, err)
}

func TestRun_EmitsGapLineWhenStartupWrapped(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 500, NextUSN: 900}}
	o := New(opts, reader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Run(ctx, StartupOutcome{Metadata: reader.metadata, EmitGap: true, GapFrom: 10, GapTo: 500})
	require.NoError(t, err)
	require.NotEmpty(t, emitted)
}

func TestHandleBatchError_RuntimeWrapEmitsGapLine(t *testing.T) {
	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)
	defer o.coalescer.Dispose(joinTimeout)

	gapErr := errs.New(errs.ErrWrapped, "journal entry deleted, cursor reset to live tail")
	gapErr.GapFrom = 500
	gapErr.GapTo = 900

	o.handleBatchError(gapErr)

	require.Len(t, emitted, 1)
	want, err := events.GapLine(500, 900)
	require.NoError(t, err)
	assert.Equal(t, want, emitted[0])
}

func TestBackgroundPopulate_NilEntrySourceIsNoOp(t *testing.T) {
	var emitted [][]byte
	opts := newOptions(&emitted)
	opts.CursorStore = newTestStore(t)
	opts.Populate = true
	opts.EntrySource = nil

	reader := &fakeReader{metadata: journal.Metadata{JournalID: 1, FirstUSN: 1, NextUSN: 1}}
	o := New(opts, reader)
	defer o.coalescer.Dispose(joinTimeout)

	o.BackgroundPopulate(context.Background())
	assert.Zero(t, opts.Resolver.Size())
}
