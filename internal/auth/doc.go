// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the authentication core for holoauth.
//
// # Records
//
// Session, Token and User are plain records. Stores return copies, so callers
// may modify what they receive without touching persisted state.
//
// # Managers
//
//   - SessionManager - session lifecycle with sliding renewal
//   - TokenManager - single-use verification and password reset tokens
//   - Reaper - periodic removal of expired sessions
//
// # Services
//
//   - Service - credential verification, login and logout
//   - AccountService - registration, email verification and password flows
//
// Services are created with New* constructors that validate dependencies.
//
// # Errors
//
// Every failure is an oops error carrying a code. KindOf classifies the code
// into one of the Kind values, which the HTTP layer maps to a status.
// Store implementations report missing records with ErrNotFound and duplicate
// keys with ErrAlreadyExists.
package auth
