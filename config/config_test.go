package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv(EnvSpotifyID, "")
	t.Setenv(EnvSpotifySecret, "")

	settings, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
	assert.NoError(t, settings.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Setenv(EnvSpotifyID, "")
	t.Setenv(EnvSpotifySecret, "secret")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(
		"file_lookup_threshold: 0.8\nmove_files: true\nspotify_client_id: id\nspotify_client_secret: file\n"), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, .8, settings.FileLookupThreshold)
	assert.Equal(t, .5, settings.FingerprintLookupThreshold)
	assert.True(t, settings.MoveFiles)
	assert.True(t, settings.RenameFiles)
	assert.Equal(t, "id", settings.SpotifyClientID)
	assert.Equal(t, "secret", settings.SpotifyClientSecret)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("move_files: [\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvSpotifyID, "")
	t.Setenv(EnvSpotifySecret, "")

	var (
		path     = filepath.Join(t.TempDir(), "spotitag", "config.yml")
		settings = DefaultSettings()
	)
	settings.CoverMaxSize = 500
	settings.ASCIIFilenames = true
	require.NoError(t, settings.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
}

func TestValidate(t *testing.T) {
	settings := DefaultSettings()
	settings.FileLookupThreshold = 1.2
	settings.FingerprintLookupThreshold = -.1
	settings.FileNamingFormat = " "
	settings.MoveFiles = true
	settings.MoveFilesTo = ""

	err := settings.Validate()
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Problems, 4)
}
