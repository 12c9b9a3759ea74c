// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type subjectKey struct{}

// Subject identifies the authenticated caller of a request.
type Subject struct {
	UserID    ulid.ULID
	SessionID string
}

// WithSubject returns a copy of ctx carrying subject.
func WithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(Subject)
	return subject, ok
}
