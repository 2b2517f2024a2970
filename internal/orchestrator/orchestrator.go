// Package orchestrator wires the journal reader, path resolver,
// coalescer, filter, serializer, and pipe broadcaster into the daemon's
// single cooperative main loop.
//
// Grounded on the teacher's internal/server.NFSServer.Serve for the
// overall "accept a cancellation signal, run until told to stop, join
// bounded on the way out" shape, generalized from one accept loop to the
// full startup-decide / poll / shutdown-drain sequence the daemon needs.
package orchestrator

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/usnwatcher/internal/coalescer"
	"github.com/marmos91/usnwatcher/internal/cursor"
	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/events"
	"github.com/marmos91/usnwatcher/internal/filter"
	"github.com/marmos91/usnwatcher/internal/journal"
	"github.com/marmos91/usnwatcher/internal/logger"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/pipe"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
	"github.com/marmos91/usnwatcher/pkg/metrics"
)

// cursorPersistInterval is how often the main loop writes the cursor to
// disk during steady-state operation.
const cursorPersistInterval = 30 * time.Second

// joinTimeout bounds how long shutdown waits for any single background
// task to notice cancellation and exit.
const joinTimeout = 500 * time.Millisecond

// Emitter receives rendered NDJSON lines: one call per line, including
// control messages. Implementations write to stdout, the pipe
// broadcaster, or both.
type Emitter func(line []byte)

// Options configures a single run of the orchestrator against one
// volume.
type Options struct {
	VolumeLetter   byte
	ReasonMask     uint32
	PollInterval   time.Duration
	DebounceWindow time.Duration
	Populate       bool
	Filter         filter.Predicate
	Emit           Emitter
	Broadcaster    *pipe.Broadcaster
	Metrics        *metrics.Daemon
	CursorStore    *cursor.Store
	Resolver       *pathresolver.Resolver
	EntrySource    pathresolver.EntrySource // nil disables populate
}

// Orchestrator runs the main loop for one volume until its context is
// cancelled.
type Orchestrator struct {
	opts      Options
	reader    journal.Reader
	coalescer *coalescer.Coalescer

	eventCount int64
	batchCount int64
}

// New constructs an Orchestrator. reader must already be positioned by a
// prior call to Initialize or SetCursor (the caller is expected to drive
// this via Startup before calling New — kept separate so tests can
// exercise the decision tree without a real reader).
func New(opts Options, reader journal.Reader) *Orchestrator {
	o := &Orchestrator{opts: opts, reader: reader}

	o.coalescer = coalescer.New(coalescer.Config{Window: opts.DebounceWindow}, o.onFlushed)
	o.coalescer.Start()

	return o
}

// StartupOutcome describes what the startup decision tree produced, so
// Run can emit the right control message before the main loop starts.
type StartupOutcome struct {
	Metadata    journal.Metadata
	GapFrom     int64
	GapTo       int64
	EmitGap     bool
	CursorReset bool
}

// Startup implements the three-way decision tree: no stored cursor,
// resumed, or wrapped — plus journal recreation, detected by comparing
// the stored journal ID against the freshly queried one.
func Startup(reader journal.Reader, store *cursor.Store, volume string) (StartupOutcome, error) {
	record, hasCursor := store.Load(volume)
	if !hasCursor {
		meta, err := reader.Initialize()
		if err != nil {
			return StartupOutcome{}, err
		}
		return StartupOutcome{Metadata: meta}, nil
	}

	storedJournalID, err := cursor.ParseJournalID(record.JournalID)
	if err != nil {
		logger.Warn("orchestrator: stored journal id unparseable, starting fresh: %v", err)
		meta, initErr := reader.Initialize()
		if initErr != nil {
			return StartupOutcome{}, initErr
		}
		return StartupOutcome{Metadata: meta}, nil
	}

	meta, outcome, err := reader.SetCursor(uint64(record.NextUSN))
	if err != nil {
		return StartupOutcome{}, err
	}

	if meta.JournalID != storedJournalID {
		logger.Warn("orchestrator: journal id changed (%#x -> %#x), resetting cursor", storedJournalID, meta.JournalID)
		meta, err = reader.Initialize()
		if err != nil {
			return StartupOutcome{}, err
		}
		return StartupOutcome{Metadata: meta, CursorReset: true}, nil
	}

	if outcome == journal.Wrapped {
		return StartupOutcome{
			Metadata: meta,
			EmitGap:  true,
			GapFrom:  record.NextUSN,
			GapTo:    int64(meta.FirstUSN),
		}, nil
	}

	return StartupOutcome{Metadata: meta}, nil
}

// Run drives the main loop until ctx is cancelled: read a batch, update
// the resolver, submit to the coalescer, persist the cursor periodically,
// and on cancellation flush the coalescer, persist the cursor, save the
// cache, and print a summary.
func (o *Orchestrator) Run(ctx context.Context, startup StartupOutcome) error {
	if startup.EmitGap {
		line, err := events.GapLine(startup.GapFrom, startup.GapTo)
		if err == nil {
			o.opts.Emit(line)
		}
	}
	if startup.CursorReset {
		line, err := events.CursorResetLine()
		if err == nil {
			o.opts.Emit(line)
		}
	}

	lastPersist := time.Now()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		default:
		}

		batchStart := time.Now()
		batch, err := o.reader.ReadBatch(o.opts.ReasonMask)
		o.opts.Metrics.ObserveBatchLatency(time.Since(batchStart).Seconds())

		if err != nil {
			o.handleBatchError(err)
		} else {
			o.opts.Metrics.BatchRead()
			o.batchCount++
		}

		for _, ev := range batch {
			o.process(ev)
		}

		if time.Since(lastPersist) >= cursorPersistInterval {
			o.persistCursor()
			o.opts.Metrics.SetPendingFRNs(o.coalescer.Pending())
			o.opts.Metrics.SetResolverEntries(o.opts.Resolver.Size())
			lastPersist = time.Now()
		}

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				o.shutdown()
				return nil
			case <-time.After(o.opts.PollInterval):
			}
		}
	}
}

func (o *Orchestrator) handleBatchError(err error) {
	code, ok := errs.CodeOf(err)
	if !ok {
		logger.Warn("orchestrator: batch read failed: %v", err)
		return
	}

	switch code {
	case errs.ErrCorruptBatch:
		o.opts.Metrics.CorruptBatch()
		logger.Warn("orchestrator: %v", err)
	case errs.ErrWrapped:
		o.opts.Metrics.JournalWrapped()
		logger.Warn("orchestrator: %v", err)
		if e, ok := err.(*errs.Error); ok {
			if line, lineErr := events.GapLine(e.GapFrom, e.GapTo); lineErr == nil {
				o.opts.Emit(line)
			}
		}
	default:
		logger.Warn("orchestrator: %v", err)
	}
}

// process runs one decoded event through the resolver and coalescer
// ahead of emission, per the main-loop ordering rule: creates and
// rename-new-name events update the map before resolution, so fullPath
// reflects the new name; deletes update the map to evict the FRN.
func (o *Orchestrator) process(ev *usnrecord.Event) {
	if ev.IsCreate() || ev.IsRenameNewName() || ev.IsRenameOldName() {
		o.opts.Resolver.Update(ev)
	}

	o.opts.Resolver.Resolve(ev)

	if ev.IsDelete() {
		o.opts.Resolver.Update(ev)
	}

	o.coalescer.Add(ev)
}

// onFlushed is the coalescer's sink: apply the filter predicate, render
// NDJSON, and emit to stdout and any pipe subscribers.
func (o *Orchestrator) onFlushed(ev *usnrecord.Event) {
	if o.opts.Filter != nil && !o.opts.Filter(ev) {
		logger.Filtered("dropped frn=%#x path=%s reasons=%v", ev.FRN, ev.FullPath, ev.Reasons)
		return
	}

	line, err := events.ToLine(ev)
	if err != nil {
		logger.Warn("orchestrator: failed to serialize event: %v", err)
		return
	}

	o.eventCount++
	for _, r := range ev.Reasons {
		o.opts.Metrics.EventEmitted(r)
	}

	o.opts.Emit(line)

	if o.opts.Broadcaster != nil {
		o.opts.Broadcaster.Publish(line)
		o.opts.Metrics.SetSubscribers(o.opts.Broadcaster.SubscriberCount())
	}
}

func (o *Orchestrator) persistCursor() {
	o.opts.CursorStore.Save(string(o.opts.VolumeLetter), o.reader.JournalID(), int64(o.reader.Cursor()))
}

func (o *Orchestrator) shutdown() {
	o.coalescer.Dispose(joinTimeout)
	o.coalescer.FlushAll()

	o.persistCursor()
	o.opts.Resolver.SaveCache(o.opts.VolumeLetter)

	logger.Info("usnwatcher: shutting down — %s events emitted across %s batches",
		humanize.Comma(o.eventCount), humanize.Comma(o.batchCount))
}

// BackgroundPopulate runs the MFT enumeration in its own goroutine and
// logs its outcome; it never blocks the caller and is safe to call with
// a nil EntrySource (a no-op).
func (o *Orchestrator) BackgroundPopulate(ctx context.Context) {
	if !o.opts.Populate || o.opts.EntrySource == nil {
		return
	}

	go func() {
		n, err := o.opts.Resolver.Populate(ctx, o.opts.VolumeLetter, o.opts.EntrySource)
		if err != nil {
			logger.Warn("orchestrator: populate finished with error after placing %s entries: %v", humanize.Comma(int64(n)), err)
			return
		}
		logger.Info("orchestrator: populate placed %s entries", humanize.Comma(int64(n)))
	}()
}

// EventCount and BatchCount expose the running totals for tests and the
// shutdown summary.
func (o *Orchestrator) EventCount() int64 { return o.eventCount }
func (o *Orchestrator) BatchCount() int64 { return o.batchCount }

