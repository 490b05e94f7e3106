package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrWrap(t *testing.T) {
	assert.Equal(t, "value", ErrWrap("fallback")("value", nil))
	assert.Equal(t, "fallback", ErrWrap("fallback")("value", errors.New("failure")))
	assert.Equal(t, 0, ErrWrap(0)(42, errors.New("failure")))
	assert.NotPanics(t, func() { ErrSuppress(errors.New("failure")) })
	assert.EqualError(t, ErrOnly(42, errors.New("failure")), "failure")
}

func TestFileBaseStem(t *testing.T) {
	assert.Equal(t, "01 Yesterday", FileBaseStem("/music/Help!/01 Yesterday.mp3"))
	assert.Equal(t, "cover", FileBaseStem("cover"))
}

func TestFileMoveOrCopy(t *testing.T) {
	var (
		root   = t.TempDir()
		source = filepath.Join(root, "source.mp3")
		target = filepath.Join(root, "nested", "dir", "target.mp3")
	)
	require.NoError(t, os.WriteFile(source, []byte("audio"), 0o644))
	require.NoError(t, FileMoveOrCopy(source, target))

	assert.False(t, FileExists(source))
	payload, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), payload)

	assert.Error(t, FileMoveOrCopy(source, target))
}

func TestFileCopy(t *testing.T) {
	var (
		root   = t.TempDir()
		source = filepath.Join(root, "source.txt")
		target = filepath.Join(root, "target.txt")
	)
	require.NoError(t, os.WriteFile(source, []byte("lyrics"), 0o600))
	require.NoError(t, FileCopy(source, target))
	assert.True(t, FileExists(source))
	payload, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("lyrics"), payload)
}
