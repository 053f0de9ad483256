package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

var _ Store = (*File)(nil)

// File persists credentials as a single JSON object on disk, so a session
// survives process restarts. Writes go to a temporary file that is renamed
// into place.
type File struct {
	path string
	lock sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values)
}

func (f *File) Remove(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

// load reads the document. A missing file is an empty store; a corrupt one is
// treated the same way so that a damaged file reads as logged out.
func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[store File] read %s: %w", f.path, err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("Credential file is corrupt, treating as empty")
		return make(map[string]string), nil
	}
	return values, nil
}

func (f *File) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[store File] create directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("[store File] encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("[store File] create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[store File] write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[store File] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[store File] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[store File] rename: %w", err)
	}
	return nil
}
