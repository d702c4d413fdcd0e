package cont

import (
	"context"

	"chartscan/entity"
)

type ctxKey string

const UserDataKey ctxKey = "apiClient"

func PutUser(c context.Context, user *entity.User) context.Context {
	return context.WithValue(c, UserDataKey, *user)
}

// GetUser returns the authenticated API client, or an empty non-admin one.
func GetUser(c context.Context) *entity.User {
	user, ok := c.Value(UserDataKey).(entity.User)
	if !ok {
		return &entity.User{}
	}
	return &user
}
