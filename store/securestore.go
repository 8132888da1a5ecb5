package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const secureStoreFileName = "session.enc"

// SecureStore persists the same JSON map as FileStore but encrypted at rest
// with AES-256-GCM. The encryption key is derived from a device secret via
// HKDF-SHA256, mirroring the secure-storage adapter the mobile clients use.
type SecureStore struct {
	path string
	key  []byte
	lock sync.Mutex
}

var _ Store = (*SecureStore)(nil)

// NewSecureStore derives the store key from deviceSecret and returns a store
// backed by <dir>/session.enc.
func NewSecureStore(dir string, deviceSecret []byte) (*SecureStore, error) {
	if dir == "" {
		return nil, errors.New("[NewSecureStore] dir is required")
	}
	if len(deviceSecret) == 0 {
		return nil, errors.New("[NewSecureStore] deviceSecret is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewSecureStore] create data dir")
	}

	kdf := hkdf.New(sha256.New, deviceSecret, nil, []byte("willbank-session-store"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "[NewSecureStore] derive key")
	}

	return &SecureStore{path: filepath.Join(dir, secureStoreFileName), key: key}, nil
}

// Path returns the location of the backing file, e.g. for a Watcher.
func (ss *SecureStore) Path() string {
	return ss.path
}

func (ss *SecureStore) Get(key string) (string, error) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	values, err := ss.load()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (ss *SecureStore) Set(key, value string) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	values, err := ss.load()
	if err != nil {
		return err
	}
	values[key] = value
	return ss.flush(values)
}

func (ss *SecureStore) Remove(key string) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	values, err := ss.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return ss.flush(values)
}

func (ss *SecureStore) load() (map[string]string, error) {
	blob, err := os.ReadFile(ss.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read store file")
	}
	plain, err := ss.decrypt(blob)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, errors.Wrap(err, "decode store file")
	}
	return values, nil
}

func (ss *SecureStore) flush(values map[string]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "encode store file")
	}
	blob, err := ss.encrypt(plain)
	if err != nil {
		return err
	}
	tmp := ss.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return errors.Wrap(err, "write store file")
	}
	if err := os.Rename(tmp, ss.path); err != nil {
		return errors.Wrap(err, "replace store file")
	}
	return nil
}

// encrypt seals plain with AES-256-GCM, nonce prepended to the ciphertext.
func (ss *SecureStore) encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(ss.key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "init gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (ss *SecureStore) decrypt(blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(ss.key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "init gcm")
	}
	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("store file truncated")
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt store file")
	}
	return plain, nil
}
