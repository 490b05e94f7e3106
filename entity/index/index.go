package index

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/streambinder/spotitag/entity"
)

// Unmatched groups the files not yet identified
const Unmatched entity.ParentID = "unmatched"

// Index is the registry owning every file of the session
// and the parents (unmatched or matched tracks) they're grouped by
type Index struct {
	mu           sync.RWMutex
	files        map[entity.FileID]*entity.File
	groups       map[entity.ParentID][]*entity.File
	tracks       map[entity.ParentID]*entity.Track
	fingerprints map[string]string
	listeners    []func(entity.ParentID, *entity.File)
}

func New() *Index {
	return &Index{
		files:        make(map[entity.FileID]*entity.File),
		groups:       make(map[entity.ParentID][]*entity.File),
		tracks:       make(map[entity.ParentID]*entity.Track),
		fingerprints: make(map[string]string),
	}
}

// Build scans a local library returning the paths
// of the files accepted by the given filter
func Build(path string, accept func(string) bool) (paths []string, err error) {
	err = filepath.WalkDir(path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !accept(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	sort.Strings(paths)
	return
}

// TrackParent identifies the parent of files matched to a track
func TrackParent(track *entity.Track) entity.ParentID {
	return entity.ParentID(track.AlbumID + "/" + track.ID)
}

// OnUpdate registers a hook called whenever a file notifies its parent
func (index *Index) OnUpdate(fn func(entity.ParentID, *entity.File)) {
	index.mu.Lock()
	defer index.mu.Unlock()
	index.listeners = append(index.listeners, fn)
}

// Register adds the file to the session, grouped as unmatched
func (index *Index) Register(file *entity.File) {
	index.mu.Lock()
	index.files[file.ID()] = file
	index.mu.Unlock()
	file.Move(Unmatched)
}

// Remove drops the file from the session
func (index *Index) Remove(file *entity.File) {
	file.Remove()
	index.mu.Lock()
	defer index.mu.Unlock()
	delete(index.files, file.ID())
}

// MoveFileToTrack hands the file over to the track it's been matched to
func (index *Index) MoveFileToTrack(file *entity.File, track *entity.Track) {
	parent := TrackParent(track)
	index.mu.Lock()
	index.tracks[parent] = track
	index.mu.Unlock()

	file.Move(parent)
	file.AssignTrack(track.Metadata())
}

func (index *Index) AddFile(parent entity.ParentID, file *entity.File) {
	index.mu.Lock()
	defer index.mu.Unlock()
	for _, sibling := range index.groups[parent] {
		if sibling == file {
			return
		}
	}
	index.groups[parent] = append(index.groups[parent], file)
}

func (index *Index) RemoveFile(parent entity.ParentID, file *entity.File) {
	index.mu.Lock()
	defer index.mu.Unlock()
	siblings := index.groups[parent]
	for position, sibling := range siblings {
		if sibling == file {
			index.groups[parent] = append(siblings[:position:position], siblings[position+1:]...)
			break
		}
	}
	if len(index.groups[parent]) == 0 {
		delete(index.groups, parent)
		delete(index.tracks, parent)
	}
}

func (index *Index) UpdateFile(parent entity.ParentID, file *entity.File) {
	index.mu.RLock()
	listeners := append([]func(entity.ParentID, *entity.File){}, index.listeners...)
	index.mu.RUnlock()
	for _, listener := range listeners {
		listener(parent, file)
	}
}

func (index *Index) Get(id entity.FileID) (*entity.File, bool) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	file, ok := index.files[id]
	return file, ok
}

// ByPath looks up a session file by its current path
func (index *Index) ByPath(path string) (*entity.File, bool) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	for _, file := range index.files {
		if filepath.Clean(file.Path()) == filepath.Clean(path) {
			return file, true
		}
	}
	return nil, false
}

// Files returns the files grouped by parent, sorted by identifier
func (index *Index) Files(parent entity.ParentID) []*entity.File {
	index.mu.RLock()
	files := append([]*entity.File{}, index.groups[parent]...)
	index.mu.RUnlock()
	sort.Slice(files, func(i, j int) bool { return files[i].ID() < files[j].ID() })
	return files
}

func (index *Index) Track(parent entity.ParentID) (*entity.Track, bool) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	track, ok := index.tracks[parent]
	return track, ok
}

func (index *Index) Parents() []entity.ParentID {
	index.mu.RLock()
	defer index.mu.RUnlock()
	parents := make([]entity.ParentID, 0, len(index.groups))
	for parent := range index.groups {
		parents = append(parents, parent)
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })
	return parents
}

// RecordFingerprint remembers which track a fingerprint got resolved to
func (index *Index) RecordFingerprint(fingerprint, trackID string) {
	if fingerprint == "" {
		return
	}
	index.mu.Lock()
	defer index.mu.Unlock()
	index.fingerprints[fingerprint] = trackID
}

func (index *Index) Fingerprints() map[string]string {
	index.mu.RLock()
	defer index.mu.RUnlock()
	fingerprints := make(map[string]string, len(index.fingerprints))
	for fingerprint, trackID := range index.fingerprints {
		fingerprints[fingerprint] = trackID
	}
	return fingerprints
}

// Size counts the session files, optionally filtered by state
func (index *Index) Size(states ...entity.State) (size int) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	if len(states) == 0 {
		return len(index.files)
	}
	for _, file := range index.files {
		for _, state := range states {
			if file.State() == state {
				size++
				break
			}
		}
	}
	return
}
