package mockbank

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/willbank/go-session-client/profiles"
)

func TestUserRepoCreateAssignsIdentity(t *testing.T) {
	repo := NewUserRepo()

	user, err := repo.Create(profiles.Profile{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "  John.Doe@Example.com ",
	}, "password123")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.Profile.ID)
	require.Equal(t, "john.doe@example.com", user.Profile.Email)
	require.Equal(t, "CLIENT", user.Profile.Role)
	require.False(t, user.Profile.CreatedAt.IsZero())
	require.NotEqual(t, "password123", user.PasswordHash)
}

func TestUserRepoRejectsDuplicateEmail(t *testing.T) {
	repo := NewUserRepo()

	_, err := repo.Create(profiles.Profile{Email: "john.doe@example.com"}, "password123")
	require.NoError(t, err)

	_, err = repo.Create(profiles.Profile{Email: "JOHN.DOE@example.com"}, "password123")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserRepoAuthenticate(t *testing.T) {
	repo := NewUserRepo()
	created, err := repo.Create(profiles.Profile{Email: "john.doe@example.com"}, "password123")
	require.NoError(t, err)

	user, err := repo.Authenticate("john.doe@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, created.Profile.ID, user.Profile.ID)

	_, err = repo.Authenticate("john.doe@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrPasswordMismatch)
	_, err = repo.Authenticate("nobody@example.com", "password123")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepoGetByID(t *testing.T) {
	repo := NewUserRepo()
	created, err := repo.Create(profiles.Profile{Email: "john.doe@example.com"}, "password123")
	require.NoError(t, err)

	user, err := repo.GetByID(created.Profile.ID)
	require.NoError(t, err)
	require.Equal(t, created.Profile.Email, user.Profile.Email)

	_, err = repo.GetByID(999)
	require.ErrorIs(t, err, ErrUserNotFound)
}
