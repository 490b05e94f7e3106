package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arunsworld/nursery"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/entity/index"
	"github.com/streambinder/spotitag/matcher"
	"github.com/streambinder/spotitag/naming"
)

const queueSize = 1024

var (
	ErrNoFingerprint = errors.New("no fingerprint identifier to look up")
	ErrNotRunning    = errors.New("tagger is not running")
	ErrBusy          = errors.New("file is still being loaded or looked up")
)

// Provider is the remote catalog files get identified against
type Provider interface {
	FindTracks(ctx context.Context, query entity.Query) ([]*entity.Track, error)
}

// Notifier receives the user facing status messages
type Notifier interface {
	Notify(file *entity.File, message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(*entity.File, string) {}

type LookupError struct {
	Query entity.Query
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup failed: %v", e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Codecs maps lower-cased file extensions to the codec handling them
type Codecs map[string]entity.Codec

func (codecs Codecs) For(path string) entity.Codec {
	return codecs[strings.ToLower(filepath.Ext(path))]
}

func (codecs Codecs) Supports(path string) bool {
	return codecs.For(path) != nil
}

type Options struct {
	Index      *index.Index
	IDs        *entity.IDAllocator
	Codecs     Codecs
	Provider   Provider
	Policy     *naming.Policy
	Thresholds matcher.Thresholds
	Logger     *slog.Logger
	Notifier   Notifier
}

type loadTask struct {
	file *entity.File
	done func(*entity.File)
}

// Tagger drives files through their lifecycle: every state change
// is applied by a single coordination routine, while tag reading
// happens on a dedicated load worker and lookups on their own goroutines
type Tagger struct {
	index      *index.Index
	ids        *entity.IDAllocator
	codecs     Codecs
	provider   Provider
	policy     *naming.Policy
	thresholds matcher.Thresholds
	logger     *slog.Logger
	notifier   Notifier

	posts    chan func()
	loads    chan loadTask
	inflight sync.WaitGroup
	running  chan struct{}
	stopped  chan struct{}
	start    sync.Once
}

func New(opts Options) *Tagger {
	tagger := &Tagger{
		index:      opts.Index,
		ids:        opts.IDs,
		codecs:     opts.Codecs,
		provider:   opts.Provider,
		policy:     opts.Policy,
		thresholds: opts.Thresholds,
		logger:     opts.Logger,
		notifier:   opts.Notifier,
		posts:      make(chan func(), queueSize),
		loads:      make(chan loadTask, queueSize),
		running:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	if tagger.index == nil {
		tagger.index = index.New()
	}
	if tagger.ids == nil {
		tagger.ids = entity.NewIDAllocator()
	}
	if tagger.logger == nil {
		tagger.logger = slog.Default()
	}
	if tagger.notifier == nil {
		tagger.notifier = nopNotifier{}
	}
	return tagger
}

func (tagger *Tagger) Index() *index.Index {
	return tagger.index
}

// Run blocks running the coordination routine and the load worker
// until ctx gets cancelled
func (tagger *Tagger) Run(ctx context.Context) error {
	err := ErrNotRunning
	tagger.start.Do(func() {
		close(tagger.running)
		defer close(tagger.stopped)
		err = nursery.RunConcurrentlyWithContext(ctx, tagger.routineCoordinate, tagger.routineLoad)
	})
	return err
}

// coordinator applies every observable state change
func (tagger *Tagger) routineCoordinate(ctx context.Context, _ chan error) {
	for {
		select {
		case fn := <-tagger.posts:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// loader reads tags off the coordination routine
func (tagger *Tagger) routineLoad(ctx context.Context, _ chan error) {
	for {
		select {
		case task := <-tagger.loads:
			tagger.load(task)
		case <-ctx.Done():
			return
		}
	}
}

// post marshals fn onto the coordination routine,
// reporting false if the tagger is not running anymore
func (tagger *Tagger) post(fn func()) bool {
	select {
	case tagger.posts <- fn:
		return true
	case <-tagger.stopped:
		return false
	}
}

// call marshals fn onto the coordination routine and waits for it
func (tagger *Tagger) call(ctx context.Context, fn func()) error {
	select {
	case <-tagger.running:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	if !tagger.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-tagger.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish runs the completion of an in-flight task on the coordination routine
func (tagger *Tagger) finish(fn func()) {
	if !tagger.post(func() {
		defer tagger.inflight.Done()
		fn()
	}) {
		tagger.inflight.Done()
	}
}

// Wait blocks until every in-flight load and lookup got applied
func (tagger *Tagger) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tagger.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddFiles registers the files at the given paths and schedules their loading,
// done gets called on the coordination routine once each of them is loaded
func (tagger *Tagger) AddFiles(ctx context.Context, paths []string, done func(*entity.File)) ([]*entity.File, error) {
	var files []*entity.File
	if err := tagger.call(ctx, func() {
		for _, path := range paths {
			if _, ok := tagger.index.ByPath(path); ok {
				tagger.logger.Debug("file already added", "path", path)
				continue
			}
			file := entity.NewFile(tagger.ids, path, tagger.codecs.For(path), tagger.index)
			tagger.index.Register(file)
			file.BeginLoad()
			files = append(files, file)
		}
	}); err != nil {
		return nil, err
	}

	for _, file := range files {
		tagger.inflight.Add(1)
		select {
		case tagger.loads <- loadTask{file: file, done: done}:
		case <-ctx.Done():
			tagger.inflight.Done()
			return files, ctx.Err()
		}
	}
	return files, nil
}

func (tagger *Tagger) load(task loadTask) {
	file := task.file
	// removed or already loaded in the meantime
	if !file.IsPending() {
		tagger.inflight.Done()
		return
	}

	metadata, err := file.Read()
	tagger.finish(func() {
		if !file.FinishLoad(metadata, err) {
			tagger.logger.Debug("load result discarded", "file", file.Path(), "state", file.State())
			return
		}
		if err != nil {
			tagger.logger.Warn("load failed", "file", file.Path(), "error", err)
			tagger.notifier.Notify(file, file.Error())
		} else {
			tagger.logger.Debug("file loaded", "file", file.Path())
		}
		if task.done != nil {
			task.done(file)
		}
	})
}

// Remove drops the file from the session, in-flight tasks
// concerning it become no-ops
func (tagger *Tagger) Remove(ctx context.Context, file *entity.File) error {
	return tagger.call(ctx, func() {
		tagger.index.Remove(file)
	})
}

// Edit mutates the active metadata of the file and re-evaluates it
func (tagger *Tagger) Edit(ctx context.Context, file *entity.File, fn func(*entity.Metadata)) error {
	return tagger.call(ctx, func() {
		file.Edit(fn)
		file.Update()
	})
}

// LookupMetadata identifies the file searching the catalog by its tags
func (tagger *Tagger) LookupMetadata(ctx context.Context, file *entity.File) error {
	return tagger.lookup(ctx, file, matcher.KindMetadata)
}

// LookupFingerprint identifies the file by its recording identifier
func (tagger *Tagger) LookupFingerprint(ctx context.Context, file *entity.File) error {
	return tagger.lookup(ctx, file, matcher.KindFingerprint)
}

func (tagger *Tagger) lookup(ctx context.Context, file *entity.File, kind matcher.Kind) error {
	var (
		query   entity.Query
		skipErr error
	)
	if err := tagger.call(ctx, func() {
		switch file.State() {
		case entity.StateRemoved, entity.StateError:
			skipErr = fmt.Errorf("%s cannot be looked up: %s", file, file.State())
			return
		case entity.StatePending:
			skipErr = ErrBusy
			return
		}
		metadata := file.Metadata()
		if kind == matcher.KindFingerprint {
			if query.Fingerprint = metadata.Get(entity.TagISRC, ""); query.Fingerprint == "" {
				skipErr = ErrNoFingerprint
				return
			}
		} else {
			query = entity.QueryFromMetadata(metadata)
		}
		file.SetPending()
		tagger.notifier.Notify(file, "looking up the metadata")
	}); err != nil {
		return err
	}
	if skipErr != nil {
		return skipErr
	}

	tagger.inflight.Add(1)
	go func() {
		tracks, err := tagger.provider.FindTracks(ctx, query)
		if err != nil {
			err = &LookupError{Query: query, Err: err}
		}
		tagger.finish(func() {
			tagger.lookupFinished(file, kind, tracks, err)
		})
	}()
	return nil
}

// lookupFinished applies the outcome of a lookup, on the coordination routine
func (tagger *Tagger) lookupFinished(file *entity.File, kind matcher.Kind, tracks []*entity.Track, err error) {
	if file.State() == entity.StateRemoved {
		return
	}

	if err != nil {
		tagger.logger.Warn("lookup failed", "file", file.Path(), "kind", kind, "error", err)
		file.ClearPending()
		tagger.notifier.Notify(file, "no matching tracks found")
		return
	}

	metadata := file.Metadata()
	match, ok := matcher.Select(metadata, tracks, tagger.thresholds.For(kind))
	if !ok {
		tagger.logger.Info("no match", "file", file.Path(), "kind", kind, "candidates", len(tracks))
		file.ClearPending()
		tagger.notifier.Notify(file, "no matching tracks above the threshold")
		return
	}

	file.ClearPending()
	tagger.index.RecordFingerprint(metadata.Get(entity.TagFingerprint, ""), match.Track.ID)
	tagger.index.MoveFileToTrack(file, match.Track)
	tagger.logger.Info("file matched", "file", file.Path(), "track", match.Track.String(), "score", match.Score)
	tagger.notifier.Notify(file, fmt.Sprintf("matched %s (%.0f%%)", match.Track, match.Score*100))
}

// Save writes the active metadata to disk, then renames and moves the file
// according to the naming policy: failures leave the file state untouched
func (tagger *Tagger) Save(ctx context.Context, file *entity.File) error {
	switch file.State() {
	case entity.StateRemoved, entity.StateError, entity.StatePending:
		return &entity.SaveError{Path: file.Path(), Err: fmt.Errorf("file is %s", file.State())}
	}

	if err := file.Write(); err != nil {
		return err
	}

	var (
		oldPath  = file.Path()
		newPath  = oldPath
		metadata = file.Metadata()
	)
	if tagger.policy != nil {
		target, err := tagger.policy.MakeFilename(oldPath, metadata)
		if err != nil {
			return &entity.SaveError{Path: oldPath, Err: err}
		}
		if newPath, err = tagger.policy.Place(oldPath, target); err != nil {
			return &entity.SaveError{Path: oldPath, Err: err}
		}
		if _, err := tagger.policy.SaveImages(newPath, metadata); err != nil {
			tagger.logger.Warn("saving images failed", "file", newPath, "error", err)
		}
		if err := tagger.policy.MoveAdditionalFiles(oldPath, newPath, tagger.isLoaded); err != nil {
			tagger.logger.Warn("moving additional files failed", "file", newPath, "error", err)
		}
	}

	if err := tagger.call(ctx, func() { file.MarkSaved(newPath) }); err != nil {
		return err
	}
	tagger.logger.Info("file saved", "file", newPath)
	tagger.notifier.Notify(file, "saved")
	return nil
}

func (tagger *Tagger) isLoaded(path string) bool {
	_, ok := tagger.index.ByPath(path)
	return ok
}
