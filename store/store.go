package store

import "errors"

// Keys used by the session manager. They match the keys the mobile clients
// used in device storage, so a store file written by an older build remains
// readable.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyClientID     = "clientId"
	KeyProfile      = "client"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Store is durable device-local key-value storage. Values survive process
// restarts. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}
