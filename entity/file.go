package entity

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/streambinder/spotitag/util"
)

type State int

const (
	StatePending State = iota
	StateNormal
	StateChanged
	StateError
	StateRemoved
)

func (state State) String() string {
	switch state {
	case StatePending:
		return "pending"
	case StateNormal:
		return "normal"
	case StateChanged:
		return "changed"
	case StateError:
		return "error"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// View selects one of the metadata instances owned by a file
type View int

const (
	// ViewOriginal is the baseline, as loaded from (or last saved to) disk
	ViewOriginal View = iota
	// ViewUser is the instance edits are applied to
	ViewUser
	// ViewServer is the instance confirmed by the remote lookup
	ViewServer
	viewCount
)

// ParentID identifies the grouping a file belongs to
type ParentID string

// Groups is the registry owning file groupings:
// files only ever know their parent identifier
type Groups interface {
	AddFile(parent ParentID, file *File)
	RemoveFile(parent ParentID, file *File)
	UpdateFile(parent ParentID, file *File)
}

// Codec reads and writes the tags of a specific file format
type Codec interface {
	Load(path string) (*Metadata, error)
	Save(path string, metadata *Metadata) error
	SupportsTag(name string) bool
}

var trackNumberPattern = regexp.MustCompile(`(?i)^(?:track)?\s*(?:no|nr)?\s*(\d+)`)

type File struct {
	mu         sync.RWMutex
	id         FileID
	path       string
	codec      Codec
	groups     Groups
	parent     ParentID
	state      State
	err        string
	similarity float64
	views      [viewCount]*Metadata
	active     View
}

func NewFile(ids *IDAllocator, path string, codec Codec, groups Groups) *File {
	file := &File{
		id:         ids.Next(),
		path:       path,
		codec:      codec,
		groups:     groups,
		state:      StatePending,
		similarity: 1,
		active:     ViewUser,
	}
	for view := range file.views {
		file.views[view] = NewMetadata()
	}

	original := file.views[ViewOriginal]
	original.Set(TagTitle, filepath.Base(path))
	original.Set(TagLength, "0")
	original.Set(TagLengthText, FormatLength(0))
	file.views[ViewUser].Copy(original)
	file.views[ViewServer].Copy(original)
	return file
}

func (file *File) String() string {
	return fmt.Sprintf("<File #%d %q>", file.ID(), filepath.Base(file.Path()))
}

func (file *File) ID() FileID {
	return file.id
}

func (file *File) Path() string {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.path
}

func (file *File) State() State {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.state
}

func (file *File) IsPending() bool {
	return file.State() == StatePending
}

func (file *File) HasError() bool {
	return file.State() == StateError
}

// Error returns the message of the last failed load
func (file *File) Error() string {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.err
}

func (file *File) Similarity() float64 {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.similarity
}

// IsSaved is true only for files with nothing left to do
func (file *File) IsSaved() bool {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.similarity == 1 && file.state == StateNormal
}

func (file *File) Parent() ParentID {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.parent
}

func (file *File) ActiveView() View {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.active
}

// Metadata returns a copy of the active metadata instance
func (file *File) Metadata() *Metadata {
	return file.Snapshot(file.ActiveView())
}

// Snapshot returns a copy of the given metadata instance
func (file *File) Snapshot(view View) *Metadata {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.views[view].Clone()
}

// Edit mutates the active metadata instance:
// callers must Update afterwards for the change to be observed
func (file *File) Edit(fn func(*Metadata)) {
	file.mu.Lock()
	defer file.mu.Unlock()
	fn(file.views[file.active])
}

func (file *File) TrackNumber() int {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.views[file.active].Int(TagTrackNumber)
}

func (file *File) DiscNumber() int {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.views[file.active].Int(TagDiscNumber)
}

// SupportsTag reports whether the field can be saved to the file
func (file *File) SupportsTag(name string) bool {
	if file.codec == nil {
		return true
	}
	return file.codec.SupportsTag(name)
}

// BeginLoad prepares the file for loading:
// title gets inferred from the file name if tags lack it
func (file *File) BeginLoad() {
	file.Edit(func(metadata *Metadata) {
		metadata.Delete(TagTitle)
	})
}

// Read loads tags through the codec without touching the file state,
// it's meant to be run out of the coordination routine
func (file *File) Read() (metadata *Metadata, err error) {
	path := file.Path()
	defer func() {
		if r := recover(); r != nil {
			metadata, err = nil, &LoadError{Path: path, Err: fmt.Errorf("%v", r)}
		}
	}()

	if file.codec == nil {
		return nil, &LoadError{Path: path, Err: errors.New("unsupported format")}
	}
	if metadata, err = file.codec.Load(path); err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			err = &LoadError{Path: path, Err: err}
		}
		return nil, err
	}
	if metadata == nil {
		metadata = NewMetadata()
	}
	return metadata, nil
}

// FinishLoad applies the outcome of Read: it's a no-op
// unless the file is still pending, in which case it reports true
func (file *File) FinishLoad(loaded *Metadata, loadErr error) bool {
	file.mu.Lock()
	if file.state != StatePending {
		file.mu.Unlock()
		return false
	}

	if loadErr != nil {
		file.err = loadErr.Error()
		file.state = StateError
	} else {
		active := file.views[file.active]
		for _, key := range loaded.Keys() {
			active.Set(key, loaded.GetAll(key)...)
		}
		if len(loaded.Images) > 0 {
			active.Images = loaded.Clone().Images
		}
		file.postLoad()
		file.err = ""
		file.state = StateNormal
	}
	file.mu.Unlock()

	file.Update()
	return true
}

// postLoad derives computed fields and takes the baseline snapshot,
// lock must be held
func (file *File) postLoad() {
	var (
		active    = file.views[file.active]
		extension = filepath.Ext(file.path)
		stem      = util.FileBaseStem(file.path)
	)
	active.Set(TagExtension, strings.ToLower(strings.TrimPrefix(extension, ".")))
	active.Set(TagLengthText, FormatLength(active.Int(TagLength)))
	if !active.Has(TagTitle) {
		active.Set(TagTitle, stem)
	}
	if !active.Has(TagTrackNumber) {
		if match := trackNumberPattern.FindStringSubmatch(stem); match != nil {
			if number, err := strconv.Atoi(match[1]); err == nil {
				active.Set(TagTrackNumber, strconv.Itoa(number))
			}
		}
	}
	file.views[ViewOriginal].Copy(active)
}

// Update re-evaluates dirtiness scanning the non-internal fields of both
// the active and the baseline instances, deleted fields included
func (file *File) Update() {
	file.mu.Lock()
	var (
		original = file.views[ViewOriginal]
		active   = file.views[file.active]
		changed  = false
	)
	for _, field := range original.Diff(active) {
		if file.SupportsTag(field) {
			changed = true
			break
		}
	}

	if changed {
		file.similarity = original.Compare(active)
		if file.state == StateNormal || file.state == StateChanged {
			file.state = StateChanged
		}
	} else {
		file.similarity = 1
		if file.state == StateNormal || file.state == StateChanged {
			file.state = StateNormal
		}
	}
	parent, groups := file.parent, file.groups
	file.mu.Unlock()

	if parent != "" && groups != nil {
		groups.UpdateFile(parent, file)
	}
}

// SetPending marks the file as needing re-evaluation
func (file *File) SetPending() {
	file.mu.Lock()
	if file.state == StateRemoved {
		file.mu.Unlock()
		return
	}
	file.state = StatePending
	file.mu.Unlock()
	file.Update()
}

// ClearPending only fires if the file is actually pending
func (file *File) ClearPending() {
	file.mu.Lock()
	if file.state != StatePending {
		file.mu.Unlock()
		return
	}
	file.state = StateNormal
	file.mu.Unlock()
	file.Update()
}

// Remove detaches the file from its parent for good
func (file *File) Remove() {
	file.mu.Lock()
	parent, groups := file.parent, file.groups
	file.parent = ""
	file.state = StateRemoved
	file.mu.Unlock()

	if parent != "" && groups != nil {
		groups.RemoveFile(parent, file)
	}
}

// Move hands the file over to another parent,
// clearing the pending flag if it was attached somewhere else
func (file *File) Move(parent ParentID) {
	file.mu.Lock()
	if file.state == StateRemoved || parent == file.parent {
		file.mu.Unlock()
		return
	}
	previous, groups := file.parent, file.groups
	file.mu.Unlock()

	if previous != "" {
		file.ClearPending()
		if groups != nil {
			groups.RemoveFile(previous, file)
		}
	}

	file.mu.Lock()
	file.parent = parent
	file.mu.Unlock()
	if groups != nil {
		groups.AddFile(parent, file)
	}
}

// AssignTrack stores the remotely confirmed metadata and applies it
// on top of the active instance
func (file *File) AssignTrack(confirmed *Metadata) {
	file.mu.Lock()
	file.views[ViewServer].Copy(confirmed)
	active := file.views[file.active]
	for _, key := range confirmed.Keys() {
		if !IsInternal(key) {
			active.Set(key, confirmed.GetAll(key)...)
		}
	}
	if len(confirmed.Images) > 0 {
		active.Images = confirmed.Clone().Images
	}
	file.mu.Unlock()
	file.Update()
}

// Write saves a whitespace stripped copy of the active instance through the codec,
// the file itself is left untouched until MarkSaved
func (file *File) Write() error {
	file.mu.RLock()
	var (
		snapshot = file.views[file.active].Clone()
		path     = file.path
	)
	file.mu.RUnlock()
	snapshot.StripWhitespace()

	if file.codec == nil {
		return &SaveError{Path: path, Err: errors.New("unsupported format")}
	}
	if err := file.codec.Save(path, snapshot); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	return nil
}

// MarkSaved promotes the active instance to baseline,
// optionally recording the path the file has been moved to
func (file *File) MarkSaved(path string) {
	file.mu.Lock()
	if path != "" {
		file.path = path
	}
	active := file.views[file.active]
	active.StripWhitespace()
	file.views[ViewOriginal].Copy(active)
	file.mu.Unlock()
	file.Update()
}

// FormatLength renders milliseconds as m:ss
func FormatLength(ms int) string {
	if ms <= 0 {
		return "?:??"
	}
	seconds := (ms + 500) / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
