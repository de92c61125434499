package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAlreadyBound  = errors.New("already bound")
	ErrIncompatible  = errors.New("incompatible")
	ErrEngineFailure = errors.New("media engine failure")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")
)

// Code is the stable wire name of an error class.
type Code string

const (
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeAlreadyBound  Code = "already_bound"
	CodeIncompatible  Code = "incompatible"
	CodeEngineFailure Code = "engine_failure"
	CodeRateLimited   Code = "rate_limited"
	CodeInternal      Code = "internal"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
	{ErrAlreadyExists, CodeAlreadyExists},
	{ErrAlreadyBound, CodeAlreadyBound},
	{ErrIncompatible, CodeIncompatible},
	{ErrRateLimited, CodeRateLimited},
	{ErrEngineFailure, CodeEngineFailure},
	{ErrInternal, CodeInternal},
}

// CodeOf classifies err. Unclassified errors are internal.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// EngineFailure wraps an error raised by the media engine. Errors that already
// carry a class (not found, incompatible, ...) are returned unchanged.
func EngineFailure(err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != CodeInternal {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEngineFailure, err)
}
