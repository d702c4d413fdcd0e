package auth

import (
	"crypto/subtle"
	"fmt"

	"chartscan/entity"
)

// Auth resolves bearer tokens against the api_clients list of the config.
type Auth struct {
	clients []entity.User
}

func New(clients []entity.User) *Auth {
	return &Auth{clients: clients}
}

func (a *Auth) UserByToken(token string) (*entity.User, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	for i := range a.clients {
		c := a.clients[i]
		if subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) == 1 {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("token not found")
}
