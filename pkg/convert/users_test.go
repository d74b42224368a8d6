package convert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/usermap"
)

func TestUserResolver_Resolve(t *testing.T) {
	r := testResolver()

	user, fellBack, err := r.Resolve(&redmine.NamedRef{ID: 3, Name: "Jack Smith"})
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Equal(t, 11, user.ID)
	assert.Equal(t, "jack_smith", user.Username)
}

func TestUserResolver_ResolveNilRef(t *testing.T) {
	r := testResolver()

	_, _, err := r.Resolve(nil)
	var unknown *UnknownUserError
	require.ErrorAs(t, err, &unknown)
}

func TestUserResolver_ResolveUnknownSourceID(t *testing.T) {
	r := testResolver()

	_, _, err := r.Resolve(&redmine.NamedRef{ID: 999, Name: "Nobody"})
	var unknown *UnknownUserError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 999, unknown.SourceID)
}

func TestUserResolver_ResolveViaOverride(t *testing.T) {
	r := testResolver()
	r.Users[5] = redmine.User{ID: 5, Login: "j.doe"}
	r.Overrides = usermap.Map{"j.doe": "john_smith"}

	user, fellBack, err := r.Resolve(&redmine.NamedRef{ID: 5, Name: "Jane Doe"})
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Equal(t, "john_smith", user.Username)
}

func TestUserResolver_FallsBackToArchive(t *testing.T) {
	r := testResolver()
	r.Users[7] = redmine.User{ID: 7, Login: "ghost"}
	r.ArchiveUser = "archive"

	user, fellBack, err := r.Resolve(&redmine.NamedRef{ID: 7, Name: "Old Ghost"})
	require.NoError(t, err)
	assert.True(t, fellBack)
	assert.Equal(t, "archive", user.Username)
}

func TestUserResolver_NoTargetAccountWithoutArchive(t *testing.T) {
	r := testResolver()
	r.Users[7] = redmine.User{ID: 7, Login: "ghost"}

	_, _, err := r.Resolve(&redmine.NamedRef{ID: 7, Name: "Old Ghost"})
	var unknown *UnknownUserError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Login)
}

func TestUserResolver_Validate(t *testing.T) {
	r := testResolver()
	require.NoError(t, r.Validate())

	r.ArchiveUser = "archive"
	require.NoError(t, r.Validate())

	r.ArchiveUser = "no-such-account"
	err := r.Validate()
	var archiveErr *ArchiveUserError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, "no-such-account", archiveErr.Username)
}

func TestUserResolver_ArchiveUnset(t *testing.T) {
	r := testResolver()
	_, ok := r.Archive()
	assert.False(t, ok)
}

func TestUnknownUserError_Message(t *testing.T) {
	err := &UnknownUserError{SourceID: 7, Name: "Old Ghost", Login: "ghost"}
	assert.Contains(t, err.Error(), "ghost")

	var target *UnknownUserError
	assert.True(t, errors.As(err, &target))
}
