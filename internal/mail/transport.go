// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"errors"
)

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	ReplyTo string
	To      string
	Subject string
	HTML    string
	// Tag groups messages by purpose for providers that support it.
	Tag string
	// Link is the action URL embedded in HTML.
	Link string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
