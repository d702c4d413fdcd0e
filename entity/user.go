package entity

import (
	"net/http"

	"chartscan/lib/validate"
)

// User is an API client authenticated by a bearer token. Admin clients may
// mutate balances through the API.
type User struct {
	Username string `json:"username" yaml:"username" validate:"required"`
	Token    string `json:"token" yaml:"token" validate:"required,min=16"`
	Admin    bool   `json:"admin" yaml:"admin"`
}

func (u *User) Bind(_ *http.Request) error {
	return validate.Struct(u)
}

// GrantRequest is the admin body for crediting bonus scans.
type GrantRequest struct {
	Amount int    `json:"amount" validate:"required,gt=0"`
	Source string `json:"source" validate:"omitempty,max=32"`
}

func (g *GrantRequest) Bind(_ *http.Request) error {
	return validate.Struct(g)
}

type PremiumRequest struct {
	Days int `json:"days" validate:"required,gt=0,lte=3660"`
}

func (p *PremiumRequest) Bind(_ *http.Request) error {
	return validate.Struct(p)
}

type ReferralRequest struct {
	Code string `json:"code" validate:"required,len=8"`
}

func (r *ReferralRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}
