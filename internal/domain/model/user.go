package model

import "strings"

// Credential is the caller identity passed explicitly into every operation
// instead of being read from ambient state.
type Credential struct {
	UserRef string
	Token   string // forwarded to the gateway as a bearer token
}

func (c Credential) IsZero() bool { return strings.TrimSpace(c.UserRef) == "" }

// Identity is the server's view of the caller, refreshed before a payment is created.
type Identity struct {
	UserRef string `json:"user_ref"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}
