package storefakes

import (
	"sync"

	"github.com/willbank/go-session-client/store"
)

var _ store.Store = (*FakeStore)(nil)

// FakeStore is an in-memory store for tests. Set FailGet/FailSet/FailRemove
// to inject failures.
type FakeStore struct {
	lock   sync.Mutex
	values map[string]string

	FailGet    error
	FailSet    error
	FailRemove error

	SetCalls    int
	RemoveCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (fs *FakeStore) Get(key string) (string, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.FailGet != nil {
		return "", fs.FailGet
	}
	value, ok := fs.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (fs *FakeStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.SetCalls++
	if fs.FailSet != nil {
		return fs.FailSet
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Remove(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.RemoveCalls++
	if fs.FailRemove != nil {
		return fs.FailRemove
	}
	delete(fs.values, key)
	return nil
}

// Len returns the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return len(fs.values)
}

// Value returns the stored value, or "" when absent.
func (fs *FakeStore) Value(key string) string {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.values[key]
}
