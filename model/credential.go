package model

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Credential validation methods known to the client.
const (
	CredMethodEmail = "email"
	CredMethodTel   = "tel"
)

// ErrMalformedCredential is returned when the credential value cannot be normalized.
var ErrMalformedCredential = errors.New("malformed credential")

// Credential is an account credential such as email or phone number.
type Credential struct {
	// Credential type, i.e. `email` or `tel`.
	Method string `json:"meth,omitempty"`
	// Value to verify, i.e. `user@example.com` or `+18003287448`
	Value string `json:"val,omitempty"`
	// Verification response
	Response string `json:"resp,omitempty"`
	// Request parameters, such as preferences. Passed to validator without interpretation.
	Params map[string]any `json:"params,omitempty"`
	// Indicates that the credential is validated. Server to client only.
	Done bool `json:"done,omitempty"`
}

// NewCredential creates a credential with the value normalized for the method.
// Phone numbers without a country code are interpreted in the defaultRegion,
// a two-letter country code like "US".
func NewCredential(method, value, defaultRegion string) (*Credential, error) {
	val, err := NormalizeCredential(method, value, defaultRegion)
	if err != nil {
		return nil, err
	}
	return &Credential{Method: method, Value: val}, nil
}

// NormalizeCredential converts the value into the canonical form expected by the server:
// E.164 for phone numbers, lowercase address for emails. Unknown methods are returned as is.
func NormalizeCredential(method, value, defaultRegion string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrMalformedCredential
	}
	switch method {
	case CredMethodTel:
		num, err := phonenumbers.Parse(value, strings.ToUpper(defaultRegion))
		if err != nil {
			return "", ErrMalformedCredential
		}
		if !phonenumbers.IsValidNumber(num) {
			return "", ErrMalformedCredential
		}
		return phonenumbers.Format(num, phonenumbers.E164), nil
	case CredMethodEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil {
			return "", ErrMalformedCredential
		}
		return strings.ToLower(addr.Address), nil
	}
	return value, nil
}

// Equal compares method and value of the credentials.
func (c *Credential) Equal(o *Credential) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Method == o.Method && c.Value == o.Value
}
