// Package config stores configuration objects as YAML files and hands them out through a factory.
package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sectrean/servicekit/core/cache"
	"github.com/sectrean/servicekit/internal/errors"
)

// ErrNotFound is returned when a configuration object does not exist.
var ErrNotFound = errors.New("config not found")

// Data is a decoded configuration object.
type Data = map[string]any

// Storage reads and writes configuration objects by name.
type Storage interface {
	// Read returns the object, or [ErrNotFound].
	Read(name string) (Data, error)
	Write(name string, data Data) error
	Exists(name string) bool
	Delete(name string) error

	// ListAll returns the names starting with prefix, sorted.
	ListAll(prefix string) ([]string, error)
}

const fileExtension = ".yml"

// FileStorage keeps one YAML file per configuration object in a directory.
type FileStorage struct {
	dir string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a [FileStorage] rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Directory returns the storage root.
func (s *FileStorage) Directory() string {
	return s.dir
}

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, name+fileExtension)
}

// ReadRaw returns the encoded object, or [ErrNotFound].
func (s *FileStorage) ReadRaw(name string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "read %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return raw, nil
}

func (s *FileStorage) Read(name string) (Data, error) {
	raw, err := s.ReadRaw(name)
	if err != nil {
		return nil, err
	}

	data := Data{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	return data, nil
}

func (s *FileStorage) Write(name string, data Data) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return errors.Wrapf(os.WriteFile(s.path(name), raw, 0o644), "write %s", name)
}

func (s *FileStorage) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *FileStorage) Delete(name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(ErrNotFound, "delete %s", name)
	}
	return errors.Wrapf(err, "delete %s", name)
}

func (s *FileStorage) ListAll(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list config")
	}

	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExtension)
		if !ok || e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// CachedStorage reads through a cache bin in front of another [Storage].
type CachedStorage struct {
	storage Storage
	cache   cache.Backend
}

var _ Storage = (*CachedStorage)(nil)

// NewCachedStorage creates a [CachedStorage].
func NewCachedStorage(storage Storage, cache cache.Backend) *CachedStorage {
	return &CachedStorage{storage: storage, cache: cache}
}

func (s *CachedStorage) Read(name string) (Data, error) {
	if v, ok := s.cache.Get(name); ok {
		if d, ok := v.(Data); ok {
			return clone(d), nil
		}
	}

	data, err := s.storage.Read(name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, clone(data), cache.Permanent)
	return data, nil
}

func (s *CachedStorage) Write(name string, data Data) error {
	if err := s.storage.Write(name, data); err != nil {
		return err
	}
	s.cache.Set(name, clone(data), cache.Permanent)
	return nil
}

func (s *CachedStorage) Exists(name string) bool {
	if _, ok := s.cache.Get(name); ok {
		return true
	}
	return s.storage.Exists(name)
}

func (s *CachedStorage) Delete(name string) error {
	s.cache.Delete(name)
	return s.storage.Delete(name)
}

func (s *CachedStorage) ListAll(prefix string) ([]string, error) {
	return s.storage.ListAll(prefix)
}

func clone(d Data) Data {
	c := make(Data, len(d))
	for k, v := range d {
		if m, ok := v.(Data); ok {
			v = clone(m)
		}
		c[k] = v
	}
	return c
}
