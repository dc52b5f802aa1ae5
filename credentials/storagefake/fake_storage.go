package storagefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credentials"
)

var _ credentials.Storage = (*FakeStorage)(nil)

// FakeStorage is an in-memory credentials.Storage with error injection.
// It deliberately does not implement credentials.BatchStorage.
type FakeStorage struct {
	values   map[string]string
	failures map[string]error
	writes   int
	lock     sync.RWMutex
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		values:   make(map[string]string),
		failures: make(map[string]error),
	}
}

func (fs *FakeStorage) Get(_ context.Context, key string) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if err := fs.failures[key]; err != nil {
		return "", err
	}
	v, ok := fs.values[key]
	if !ok {
		return "", credentials.ErrNotFound
	}
	return v, nil
}

func (fs *FakeStorage) Set(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.failures[key]; err != nil {
		return err
	}
	fs.values[key] = value
	fs.writes++
	return nil
}

func (fs *FakeStorage) Remove(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.failures[key]; err != nil {
		return err
	}
	if _, ok := fs.values[key]; !ok {
		return credentials.ErrNotFound
	}
	delete(fs.values, key)
	return nil
}

// Fail makes every operation on key return err. A nil err clears the failure.
func (fs *FakeStorage) Fail(key string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err == nil {
		delete(fs.failures, key)
		return
	}
	fs.failures[key] = err
}

// Raw returns the stored value without failure injection.
func (fs *FakeStorage) Raw(key string) (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	v, ok := fs.values[key]
	return v, ok
}

// Put stores a value directly, bypassing failure injection and the write counter.
func (fs *FakeStorage) Put(key, value string) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.values[key] = value
}

func (fs *FakeStorage) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}

func (fs *FakeStorage) Writes() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.writes
}
