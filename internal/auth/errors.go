// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by stores when a unique key is already taken.
var ErrAlreadyExists = errors.New("already exists")

// Kind classifies a failure for callers at the transport boundary.
type Kind string

// Failure kinds.
const (
	KindBadRequest   Kind = "BadRequest"
	KindUnauthorized Kind = "Unauthorized"
	KindNotFound     Kind = "NotFound"
	KindGone         Kind = "Gone"
	KindConflict     Kind = "Conflict"
	KindInternal     Kind = "Internal"
)

// Error codes raised by the auth package.
const (
	CodeSessionMissing = "SESSION_MISSING"
	CodeSessionInvalid = "SESSION_INVALID"
	CodeSessionExpired = "SESSION_EXPIRED"

	CodeSessionCreateFailed = "SESSION_CREATE_FAILED"
	CodeSessionDeleteFailed = "SESSION_DELETE_FAILED"
	CodeSessionLookupFailed = "SESSION_LOOKUP_FAILED"

	CodeTokenEmpty           = "TOKEN_EMPTY"
	CodeTokenIdentifierEmpty = "TOKEN_IDENTIFIER_EMPTY"
	CodeTokenUnknownKind     = "TOKEN_UNKNOWN_KIND"
	CodeTokenNotFound        = "TOKEN_NOT_FOUND"
	CodeTokenExpired         = "TOKEN_EXPIRED"

	CodeMissingCredentials = "AUTH_MISSING_CREDENTIALS"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "AUTH_EMAIL_NOT_VERIFIED"

	CodeAccountExists          = "ACCOUNT_EXISTS"
	CodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	CodeAccountInvalidEmail    = "ACCOUNT_INVALID_EMAIL"
	CodeAccountInvalidPassword = "ACCOUNT_INVALID_PASSWORD"
	CodeAccountMissingFields   = "ACCOUNT_MISSING_FIELDS"
	CodeAccountWeakPassword    = "ACCOUNT_WEAK_PASSWORD"
	CodeEmptyPassword          = "AUTH_EMPTY_PASSWORD"

	// CodeMalformedHash marks a stored password hash that cannot be parsed.
	// It stays out of codeKinds: the stored value is at fault, not the caller.
	CodeMalformedHash = "PASSWORD_HASH_MALFORMED"

	CodeMalformedRequest = "REQUEST_MALFORMED"
)

// codeKinds maps every client-facing code to its kind. Codes absent from the
// table are internal failures.
var codeKinds = map[string]Kind{
	CodeSessionMissing: KindUnauthorized,
	CodeSessionInvalid: KindUnauthorized,
	CodeSessionExpired: KindUnauthorized,

	CodeTokenEmpty:           KindBadRequest,
	CodeTokenIdentifierEmpty: KindBadRequest,
	CodeTokenUnknownKind:     KindBadRequest,
	CodeTokenNotFound:        KindNotFound,
	CodeTokenExpired:         KindGone,

	CodeMissingCredentials: KindBadRequest,
	CodeUserNotFound:       KindNotFound,
	CodeInvalidCredentials: KindUnauthorized,
	CodeEmailNotVerified:   KindUnauthorized,

	CodeAccountExists:          KindConflict,
	CodeAccountNotFound:        KindNotFound,
	CodeAccountInvalidEmail:    KindBadRequest,
	CodeAccountInvalidPassword: KindUnauthorized,
	CodeAccountMissingFields:   KindBadRequest,
	CodeAccountWeakPassword:    KindBadRequest,
	CodeEmptyPassword:          KindBadRequest,

	CodeMalformedRequest: KindBadRequest,
}

// KindOf reports the kind of err. The deepest oops code in the chain decides;
// anything unrecognized is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindInternal
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
