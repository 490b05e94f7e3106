package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrWrap returns the value unless err is set,
// in which case the fallback gets returned
func ErrWrap[T any](fallback T) func(T, error) T {
	return func(value T, err error) T {
		if err != nil {
			return fallback
		}
		return value
	}
}

// ErrSuppress explicitly discards an error
func ErrSuppress(_ error) {}

// ErrOnly drops the value of a (value, error) pair
func ErrOnly[T any](_ T, err error) error {
	return err
}

// FileBaseStem returns the file name without its extension
func FileBaseStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileMoveOrCopy renames source to target, falling back
// to copy and delete whenever renaming is not possible (e.g. across devices)
func FileMoveOrCopy(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.Rename(source, target); err == nil {
		return nil
	}
	if err := FileCopy(source, target); err != nil {
		return err
	}
	return os.Remove(source)
}

func FileCopy(source, target string) (err error) {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	info, err := input.Stat()
	if err != nil {
		return err
	}
	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, output.Close())
	}()

	_, err = io.Copy(output, input)
	return err
}
