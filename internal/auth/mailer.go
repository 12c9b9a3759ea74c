// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Mailer delivers a token to the owner of an email address. The kind decides
// which message is sent.
type Mailer interface {
	Send(ctx context.Context, kind TokenKind, to, token string) error
}
