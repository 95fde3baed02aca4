package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureAdminOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, zap.NewNop())
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := svc.Authenticate(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	_, err = svc.Authenticate(ctx, "admin", "falsch")
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, err = svc.Authenticate(ctx, "niemand", "admin")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestUserCreateUniqueness(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, UserInput{Username: "lager", Email: "lager@example.org", Password: "pw", IsStaff: true})
	require.NoError(t, err)

	_, err = svc.Create(ctx, UserInput{Username: "lager", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Create(ctx, UserInput{Username: "lager2", Email: "lager@example.org", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.Create(ctx, UserInput{Username: "ohne", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// several users without email are fine
	_, err = svc.Create(ctx, UserInput{Username: "a", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, UserInput{Username: "b", Password: "pw"})
	require.NoError(t, err)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestLastAdminIsProtected(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, zap.NewNop())
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	admin, err := svc.Authenticate(ctx, "admin", "admin")
	require.NoError(t, err)

	_, err = svc.Update(ctx, admin.ID, UserInput{Username: "admin", IsAdmin: false})
	assert.ErrorIs(t, err, ErrLastAdmin)
	assert.ErrorIs(t, svc.Delete(ctx, admin.ID), ErrLastAdmin)

	second, err := svc.Create(ctx, UserInput{Username: "chef", Password: "pw", IsAdmin: true})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, admin.ID, UserInput{Username: "admin", IsStaff: true, Password: "neu"})
	require.NoError(t, err)
	assert.False(t, updated.IsAdmin)
	_, err = svc.Authenticate(ctx, "admin", "neu")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, second.ID), ErrLastAdmin)
	require.NoError(t, svc.Delete(ctx, admin.ID))
	_, err = svc.Get(ctx, admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileAndPassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, zap.NewNop())
	ctx := context.Background()

	user, err := svc.Create(ctx, UserInput{Username: "lager", Password: "alt"})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileInput{Name: "Lea Lager", Email: "lea@example.org", Bio: "Versand"})
	require.NoError(t, err)
	assert.Equal(t, "Lea Lager", updated.DisplayName())
	require.NotNil(t, updated.Email)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "falsch", "neu"), ErrWrongPassword)
	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "alt", ""), ErrInvalidInput)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "alt", "neu"))
	_, err = svc.Authenticate(ctx, "lager", "neu")
	assert.NoError(t, err)
}
