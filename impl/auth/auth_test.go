package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
)

func TestUserByToken(t *testing.T) {
	a := New([]entity.User{
		{Username: "dashboard", Token: "0123456789abcdef"},
		{Username: "ops", Token: "fedcba9876543210", Admin: true},
	})

	user, err := a.UserByToken("fedcba9876543210")
	require.NoError(t, err)
	assert.Equal(t, "ops", user.Username)
	assert.True(t, user.Admin)

	_, err = a.UserByToken("nope")
	assert.Error(t, err)
	_, err = a.UserByToken("")
	assert.Error(t, err)
}
