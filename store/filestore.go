package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const storeFileName = "session.json"

// FileStore persists keys as a JSON object in a single file under the data
// directory. Writes go through a temp file and rename so a crash never
// leaves a half-written store.
type FileStore struct {
	path string
	lock sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the data directory if needed and returns a store
// backed by <dir>/session.json.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("[NewFileStore] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] create data dir")
	}
	return &FileStore{path: filepath.Join(dir, storeFileName)}, nil
}

// Path returns the location of the backing file, e.g. for a Watcher.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(key string) (string, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.load()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.load()
	if err != nil {
		return err
	}
	values[key] = value
	return fs.flush(values)
}

func (fs *FileStore) Remove(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return fs.flush(values)
}

func (fs *FileStore) load() (map[string]string, error) {
	blob, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read store file")
	}
	values := map[string]string{}
	if len(blob) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(blob, &values); err != nil {
		return nil, errors.Wrap(err, "decode store file")
	}
	return values, nil
}

func (fs *FileStore) flush(values map[string]string) error {
	blob, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode store file")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return errors.Wrap(err, "write store file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "replace store file")
	}
	return nil
}
