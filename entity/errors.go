package entity

import "fmt"

// LoadError is produced by codecs failing to read a file,
// it ends up as the file error message
type LoadError struct {
	Path string
	Err  error
}

func (err *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", err.Path, err.Err)
}

func (err *LoadError) Unwrap() error {
	return err.Err
}

// SaveError is returned to save callers,
// the file state is left untouched
type SaveError struct {
	Path string
	Err  error
}

func (err *SaveError) Error() string {
	return fmt.Sprintf("save %s: %s", err.Path, err.Err)
}

func (err *SaveError) Unwrap() error {
	return err.Err
}
