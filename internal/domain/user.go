// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 64
)

var (
	ErrUsernameTooLong = errors.Wrap(ErrInvalidInput, "username too long")
	ErrUsernameEmpty   = errors.Wrap(ErrInvalidInput, "username empty")
)

type UserID string

type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"name"`
}

// NewUser trims the name and allocates a fresh random id.
func NewUser(username string) (*User, error) {
	name, err := normalizeName(username)
	if err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Username: name}, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
