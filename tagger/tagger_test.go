package tagger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambinder/spotitag/config"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/entity/index"
	"github.com/streambinder/spotitag/logging"
	"github.com/streambinder/spotitag/matcher"
	"github.com/streambinder/spotitag/naming"
)

type fakeCodec struct {
	mu      sync.Mutex
	tags    map[string]*entity.Metadata
	loadErr error
	saveErr error
	gate    chan struct{}
	reading chan struct{}
}

func (codec *fakeCodec) Load(path string) (*entity.Metadata, error) {
	if codec.reading != nil {
		codec.reading <- struct{}{}
	}
	if codec.gate != nil {
		<-codec.gate
	}
	codec.mu.Lock()
	defer codec.mu.Unlock()
	if codec.loadErr != nil {
		return nil, codec.loadErr
	}
	if metadata, ok := codec.tags[filepath.Base(path)]; ok {
		return metadata.Clone(), nil
	}
	return entity.NewMetadata(), nil
}

func (codec *fakeCodec) Save(path string, metadata *entity.Metadata) error {
	codec.mu.Lock()
	defer codec.mu.Unlock()
	if codec.saveErr != nil {
		return codec.saveErr
	}
	codec.tags[filepath.Base(path)] = metadata.Clone()
	return nil
}

func (codec *fakeCodec) SupportsTag(name string) bool {
	return !entity.IsInternal(name)
}

type fakeProvider struct {
	mu      sync.Mutex
	tracks  []*entity.Track
	err     error
	queries []entity.Query
}

func (provider *fakeProvider) FindTracks(_ context.Context, query entity.Query) ([]*entity.Track, error) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.queries = append(provider.queries, query)
	return provider.tracks, provider.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (notifier *fakeNotifier) Notify(_ *entity.File, message string) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.messages = append(notifier.messages, message)
}

func (notifier *fakeNotifier) last() string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.messages) == 0 {
		return ""
	}
	return notifier.messages[len(notifier.messages)-1]
}

var yesterday = &entity.Track{
	ID:          "t1",
	Title:       "Yesterday",
	Artists:     []string{"The Beatles"},
	Album:       "Help!",
	AlbumID:     "r1",
	AlbumTracks: 14,
	Duration:    125300,
	Number:      13,
}

type fixture struct {
	tagger   *Tagger
	codec    *fakeCodec
	provider *fakeProvider
	notifier *fakeNotifier
	dir      string
	ctx      context.Context
}

func newFixture(t *testing.T, settings *config.Settings) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	fixture := &fixture{
		codec:    &fakeCodec{tags: map[string]*entity.Metadata{}},
		provider: &fakeProvider{},
		notifier: &fakeNotifier{},
		dir:      t.TempDir(),
		ctx:      ctx,
	}
	opts := Options{
		Codecs:     Codecs{".mp3": fixture.codec},
		Provider:   fixture.provider,
		Thresholds: matcher.Thresholds{Metadata: .7, Fingerprint: .5},
		Logger:     logging.NewNop(),
		Notifier:   fixture.notifier,
	}
	if settings != nil {
		opts.Policy = naming.New(*settings)
	}
	fixture.tagger = New(opts)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, fixture.tagger.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return fixture
}

func (fixture *fixture) file(t *testing.T, name string, tags *entity.Metadata) string {
	t.Helper()
	path := filepath.Join(fixture.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	if tags != nil {
		fixture.codec.tags[name] = tags
	}
	return path
}

func (fixture *fixture) add(t *testing.T, paths ...string) []*entity.File {
	t.Helper()
	files, err := fixture.tagger.AddFiles(fixture.ctx, paths, nil)
	require.NoError(t, err)
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))
	return files
}

func tags(fields ...string) *entity.Metadata {
	metadata := entity.NewMetadata()
	for index := 0; index+1 < len(fields); index += 2 {
		metadata.Set(fields[index], fields[index+1])
	}
	return metadata
}

func TestAddFilesLoads(t *testing.T) {
	var (
		fixture = newFixture(t, nil)
		path    = fixture.file(t, "01 yesterday.mp3", tags(entity.TagArtist, "The Beatles", entity.TagLength, "125000"))
		loaded  = make(chan *entity.File, 1)
	)
	files, err := fixture.tagger.AddFiles(fixture.ctx, []string{path}, func(file *entity.File) { loaded <- file })
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	file := <-loaded
	assert.Same(t, files[0], file)
	assert.Equal(t, entity.StateNormal, file.State())
	assert.Equal(t, 1.0, file.Similarity())
	assert.True(t, file.IsSaved())
	assert.Equal(t, file.Snapshot(entity.ViewOriginal), file.Snapshot(entity.ViewUser))
	assert.Equal(t, "01 yesterday", file.Metadata().Get(entity.TagTitle, ""))
	assert.Equal(t, "1", file.Metadata().Get(entity.TagTrackNumber, ""))
	assert.Equal(t, index.Unmatched, file.Parent())

	// files already in the session are skipped
	again, err := fixture.tagger.AddFiles(fixture.ctx, []string{path}, nil)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 1, fixture.tagger.Index().Size())
}

func TestAddFilesLoadFailure(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.codec.loadErr = errors.New("truncated header")
	files := fixture.add(t, fixture.file(t, "broken.mp3", nil), filepath.Join(fixture.dir, "notes.txt"))
	require.Len(t, files, 2)

	for _, file := range files {
		assert.Equal(t, entity.StateError, file.State())
		assert.NotEmpty(t, file.Error())
		assert.Equal(t, filepath.Base(file.Path()), file.Snapshot(entity.ViewOriginal).Get(entity.TagTitle, ""))
	}
	assert.Contains(t, files[0].Error(), "truncated header")
	assert.Contains(t, files[1].Error(), "unsupported format")
	assert.Equal(t, 2, fixture.tagger.Index().Size(entity.StateError))
}

func TestRemoveDuringLoad(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.codec.gate = make(chan struct{})
	fixture.codec.reading = make(chan struct{}, 1)
	path := fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday"))

	files, err := fixture.tagger.AddFiles(fixture.ctx, []string{path}, nil)
	require.NoError(t, err)
	<-fixture.codec.reading
	require.NoError(t, fixture.tagger.Remove(fixture.ctx, files[0]))
	close(fixture.codec.gate)
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	assert.Equal(t, entity.StateRemoved, files[0].State())
	assert.False(t, files[0].Metadata().Has(entity.TagTitle))
	assert.Equal(t, 0, fixture.tagger.Index().Size())
}

func TestLookupMetadataMatch(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.provider.tracks = []*entity.Track{
		{ID: "t0", Title: "Help!", Artists: []string{"The Beatles"}, Album: "Help!", AlbumID: "r1"},
		yesterday,
	}
	files := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(
		entity.TagTitle, "Yesterday",
		entity.TagArtist, "The Beatles",
		entity.TagLength, "125000",
		entity.TagFingerprint, "AQAAE0mUaEkSRZEGAA")))
	file := files[0]

	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	require.Len(t, fixture.provider.queries, 1)
	assert.Equal(t, "Yesterday", fixture.provider.queries[0].Title)
	assert.Equal(t, 125000, fixture.provider.queries[0].Duration)
	assert.Equal(t, index.TrackParent(yesterday), file.Parent())
	assert.Equal(t, entity.StateChanged, file.State())
	assert.Less(t, file.Similarity(), 1.0)
	assert.Equal(t, "Help!", file.Metadata().Get(entity.TagAlbum, ""))
	assert.Equal(t, "t1", file.Snapshot(entity.ViewServer).Get(entity.TagTrackID, ""))
	assert.Equal(t, map[string]string{"AQAAE0mUaEkSRZEGAA": "t1"}, fixture.tagger.Index().Fingerprints())
	assert.Contains(t, fixture.notifier.last(), "matched")
}

func TestLookupMetadataBelowThreshold(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.provider.tracks = []*entity.Track{{ID: "t0", Title: "Help!", Artists: []string{"The Beatles"}, AlbumID: "r1"}}
	file := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday")))[0]

	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	assert.Equal(t, index.Unmatched, file.Parent())
	assert.Equal(t, entity.StateNormal, file.State())
	assert.Equal(t, 1.0, file.Similarity())
	assert.Contains(t, fixture.notifier.last(), "threshold")
}

func TestLookupMetadataNoCandidates(t *testing.T) {
	fixture := newFixture(t, nil)
	file := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday")))[0]

	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	assert.Equal(t, index.Unmatched, file.Parent())
	assert.Equal(t, entity.StateNormal, file.State())
	assert.False(t, file.IsPending())
}

func TestLookupMetadataFailure(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.provider.err = errors.New("503 service unavailable")
	fixture.provider.tracks = []*entity.Track{yesterday}
	file := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday")))[0]

	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	assert.Equal(t, index.Unmatched, file.Parent())
	assert.Equal(t, entity.StateNormal, file.State())
	assert.Equal(t, "no matching tracks found", fixture.notifier.last())
}

func TestLookupFingerprint(t *testing.T) {
	fixture := newFixture(t, nil)
	// a weaker match passes the fingerprint threshold
	fixture.provider.tracks = []*entity.Track{{ID: "t1", Title: "Yesterday (Remastered)", Artists: []string{"Beatles"}, AlbumID: "r1"}}
	files := fixture.add(t,
		fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday", entity.TagArtist, "The Beatles", entity.TagISRC, "GBAYE0601477")),
		fixture.file(t, "unknown.mp3", tags(entity.TagTitle, "Unknown")))

	require.NoError(t, fixture.tagger.LookupFingerprint(fixture.ctx, files[0]))
	assert.ErrorIs(t, fixture.tagger.LookupFingerprint(fixture.ctx, files[1]), ErrNoFingerprint)
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	require.Len(t, fixture.provider.queries, 1)
	assert.Equal(t, entity.Query{Fingerprint: "GBAYE0601477"}, fixture.provider.queries[0])
	assert.Equal(t, entity.ParentID("r1/t1"), files[0].Parent())
	assert.Equal(t, index.Unmatched, files[1].Parent())
	assert.Equal(t, entity.StateNormal, files[1].State())
}

func TestLookupRemovedFile(t *testing.T) {
	fixture := newFixture(t, nil)
	file := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday")))[0]
	require.NoError(t, fixture.tagger.Remove(fixture.ctx, file))
	assert.Error(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
}

func TestLookupDuringLoad(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.codec.gate = make(chan struct{})
	fixture.codec.reading = make(chan struct{}, 1)
	path := fixture.file(t, "track.mp3", tags(entity.TagTitle, "Yesterday", entity.TagArtist, "The Beatles"))

	files, err := fixture.tagger.AddFiles(fixture.ctx, []string{path}, nil)
	require.NoError(t, err)
	<-fixture.codec.reading
	assert.ErrorIs(t, fixture.tagger.LookupMetadata(fixture.ctx, files[0]), ErrBusy)
	close(fixture.codec.gate)
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	file := files[0]
	assert.Empty(t, fixture.provider.queries)
	assert.Equal(t, entity.StateNormal, file.State())
	assert.Equal(t, "Yesterday", file.Metadata().Get(entity.TagTitle, ""))
	assert.Equal(t, "The Beatles", file.Metadata().Get(entity.TagArtist, ""))

	// once loaded, the file can be looked up
	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))
	assert.Len(t, fixture.provider.queries, 1)
}

func TestSaveRenames(t *testing.T) {
	settings := config.DefaultSettings()
	settings.RenameFiles = true
	settings.SaveImages = true

	fixture := newFixture(t, &settings)
	track := *yesterday
	track.Artwork.Data = []byte{0xff, 0xd8, 0xff}
	fixture.provider.tracks = []*entity.Track{&track}
	fixture.file(t, "folder.jpg", nil)
	file := fixture.add(t, fixture.file(t, "track.mp3", tags(entity.TagTitle, "Yesterday", entity.TagArtist, "The Beatles")))[0]

	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))
	require.Equal(t, entity.StateChanged, file.State())

	require.NoError(t, fixture.tagger.Save(fixture.ctx, file))
	expected := filepath.Join(fixture.dir, "13 Yesterday.mp3")
	assert.Equal(t, expected, file.Path())
	assert.FileExists(t, expected)
	assert.NoFileExists(t, filepath.Join(fixture.dir, "track.mp3"))
	assert.FileExists(t, filepath.Join(fixture.dir, "cover.jpg"))
	assert.Equal(t, entity.StateNormal, file.State())
	assert.True(t, file.IsSaved())
	assert.Equal(t, "Help!", fixture.codec.tags["track.mp3"].Get(entity.TagAlbum, ""))
}

func TestSaveFailureKeepsState(t *testing.T) {
	fixture := newFixture(t, nil)
	fixture.provider.tracks = []*entity.Track{yesterday}
	file := fixture.add(t, fixture.file(t, "track.mp3", tags(entity.TagTitle, "Yesterday", entity.TagArtist, "The Beatles")))[0]
	require.NoError(t, fixture.tagger.LookupMetadata(fixture.ctx, file))
	require.NoError(t, fixture.tagger.Wait(fixture.ctx))

	fixture.codec.saveErr = errors.New("read-only file system")
	err := fixture.tagger.Save(fixture.ctx, file)
	var saveErr *entity.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, entity.StateChanged, file.State())
	assert.Less(t, file.Similarity(), 1.0)
}

func TestSaveRejectsErroredFile(t *testing.T) {
	fixture := newFixture(t, nil)
	file := fixture.add(t, filepath.Join(fixture.dir, "notes.txt"))[0]
	var saveErr *entity.SaveError
	assert.ErrorAs(t, fixture.tagger.Save(fixture.ctx, file), &saveErr)
}

func TestEdit(t *testing.T) {
	fixture := newFixture(t, nil)
	file := fixture.add(t, fixture.file(t, "yesterday.mp3", tags(entity.TagTitle, "Yesterday")))[0]

	require.NoError(t, fixture.tagger.Edit(fixture.ctx, file, func(metadata *entity.Metadata) {
		metadata.Set(entity.TagTitle, "Yesterday (Remastered)")
	}))
	assert.Equal(t, entity.StateChanged, file.State())

	require.NoError(t, fixture.tagger.Edit(fixture.ctx, file, func(metadata *entity.Metadata) {
		metadata.Set(entity.TagTitle, "Yesterday")
	}))
	assert.Equal(t, entity.StateNormal, file.State())
	assert.Equal(t, 1.0, file.Similarity())
}

func TestCodecs(t *testing.T) {
	codec := &fakeCodec{}
	codecs := Codecs{".mp3": codec}
	assert.True(t, codecs.Supports("/music/A.MP3"))
	assert.False(t, codecs.Supports("/music/a.flac"))
	assert.Nil(t, codecs.For("/music/a"))
}

func TestNotRunning(t *testing.T) {
	tagger := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tagger.AddFiles(ctx, []string{"/music/a.mp3"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
