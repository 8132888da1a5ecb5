package mockbank

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/willbank/go-session-client/profiles"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken       = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
	ErrPasswordMismatch = errors.New("password mismatch")
)

// User is a registered client account held by the mock backend.
type User struct {
	Profile      profiles.Profile
	PasswordHash string
}

// UserRepo is an in-memory account store.
type UserRepo struct {
	lock     sync.RWMutex
	users    map[int64]*User
	emailIDs map[string]int64
	nextID   int64
	nowTime  func() time.Time
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:    make(map[int64]*User),
		emailIDs: make(map[string]int64),
		nextID:   1,
		nowTime:  time.Now,
	}
}

// Create registers an account and assigns its ID.
func (ur *UserRepo) Create(profile profiles.Profile, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.Create] hash password")
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := normalizeEmail(profile.Email)
	if _, ok := ur.emailIDs[email]; ok {
		return nil, ErrEmailTaken
	}

	profile.ID = ur.nextID
	ur.nextID++
	profile.Email = email
	profile.Role = "CLIENT"
	profile.CreatedAt = ur.nowTime()

	user := &User{Profile: profile, PasswordHash: hash}
	ur.users[profile.ID] = user
	ur.emailIDs[email] = profile.ID
	return user, nil
}

// Authenticate checks credentials and returns the account.
func (ur *UserRepo) Authenticate(email, password string) (*User, error) {
	ur.lock.RLock()
	id, ok := ur.emailIDs[normalizeEmail(email)]
	if !ok {
		ur.lock.RUnlock()
		return nil, ErrUserNotFound
	}
	user := ur.users[id]
	ur.lock.RUnlock()

	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrPasswordMismatch
	}
	return user, nil
}

func (ur *UserRepo) GetByID(id int64) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
