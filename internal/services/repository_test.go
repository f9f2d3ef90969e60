package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelvault/internal/models"
	"reelvault/internal/test"
)

func TestRepository_CreateUser(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)

	user, err := repo.CreateUser("  alice ", "secret1", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.IsAdmin)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = repo.CreateUser("alice", "another1", false)
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = repo.CreateUser("al", "secret1", false)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = repo.CreateUser("bob", "12345", false)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = repo.CreateUser("carol", strings.Repeat("a", 80), false)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestRepository_GetUserNotFound(t *testing.T) {
	repo := NewRepository(test.GetTestDB(t))

	_, err := repo.GetUserByID(42)
	assert.True(t, IsNotFound(err))

	_, err = repo.GetUserByUsername("nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRepository_ListUsers(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)

	for _, name := range []string{"user1", "user2", "user3"} {
		test.CreateTestUser(t, db, name, "secret1", false)
	}

	users, total, err := repo.ListUsers(2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, users, 2)

	users, _, err = repo.ListUsers(2, 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user3", users[0].Username)
}

func TestRepository_SelfProtection(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)
	admin := test.CreateTestUser(t, db, "admin", "admin123", true)

	_, err := repo.DeleteUser(admin.ID, admin.ID)
	assert.True(t, errors.Is(err, ErrForbiddenSelf))

	_, err = repo.ToggleAdmin(admin.ID, admin.ID)
	assert.True(t, errors.Is(err, ErrForbiddenSelf))

	demote := false
	_, err = repo.UpdateUser(admin.ID, admin.ID, UserUpdate{IsAdmin: &demote})
	assert.True(t, errors.Is(err, ErrForbiddenSelf))

	// an admin may still edit their own name
	name := "root"
	updated, err := repo.UpdateUser(admin.ID, admin.ID, UserUpdate{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "root", updated.Username)
	assert.True(t, updated.IsAdmin)
}

func TestRepository_ToggleAndDelete(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)
	admin := test.CreateTestUser(t, db, "admin", "admin123", true)
	bob := test.CreateTestUser(t, db, "bob", "secret1", false)

	toggled, err := repo.ToggleAdmin(admin.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsAdmin)

	stored, err := repo.GetUserByID(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, toggled.IsAdmin, stored.IsAdmin)

	counts, err := repo.CountUsers()
	require.NoError(t, err)
	assert.Equal(t, &UserCounts{Total: 2, Admins: 2, Regular: 0}, counts)

	_, err = repo.DeleteUser(admin.ID, bob.ID)
	require.NoError(t, err)

	_, err = repo.GetUserByID(bob.ID)
	assert.True(t, IsNotFound(err))

	// the row is soft deleted, not removed
	var raw models.User
	require.NoError(t, db.Unscoped().First(&raw, bob.ID).Error)
	assert.True(t, raw.DeletedAt.Valid)

	// a soft-deleted username stays reserved
	_, err = repo.CreateUser("bob", "secret1", false)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestRepository_ToggleAdminTwice(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)
	admin := test.CreateTestUser(t, db, "admin", "admin123", true)
	bob := test.CreateTestUser(t, db, "bob", "secret1", false)

	for _, want := range []bool{true, false} {
		toggled, err := repo.ToggleAdmin(admin.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, want, toggled.IsAdmin)

		stored, err := repo.GetUserByID(bob.ID)
		require.NoError(t, err)
		assert.Equal(t, want, stored.IsAdmin)
	}
}

func TestRepository_UpdateUserPassword(t *testing.T) {
	db := test.GetTestDB(t)
	repo := NewRepository(db)
	auth := NewAuthService(db, "secret", 0)
	admin := test.CreateTestUser(t, db, "admin", "admin123", true)
	bob := test.CreateTestUser(t, db, "bob", "secret1", false)

	short := "123"
	_, err := repo.UpdateUser(admin.ID, bob.ID, UserUpdate{Password: &short})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	password := "newpass1"
	promote := true
	_, err = repo.UpdateUser(admin.ID, bob.ID, UserUpdate{Password: &password, IsAdmin: &promote})
	require.NoError(t, err)

	user, err := auth.Login("bob", "newpass1")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	taken := "admin"
	_, err = repo.UpdateUser(admin.ID, bob.ID, UserUpdate{Username: &taken})
	assert.True(t, errors.Is(err, ErrConflict))
}
