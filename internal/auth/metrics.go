// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for auth metrics.
const (
	ResultSuccess    = "success"
	ResultNotFound   = "not_found"
	ResultExpired    = "expired"
	ResultRejected   = "rejected"
	ResultUnverified = "unverified"
	ResultError      = "error"
)

// SessionsCreated counts sessions created by login or renewal.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "holoauth_sessions_created_total",
		Help: "Total number of sessions created",
	},
)

// SessionsRenewed counts sliding renewals.
var SessionsRenewed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "holoauth_sessions_renewed_total",
		Help: "Total number of sessions replaced by sliding renewal",
	},
)

// SessionsReaped counts expired sessions removed by the reaper.
var SessionsReaped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "holoauth_sessions_reaped_total",
		Help: "Total number of expired sessions deleted by the reaper",
	},
)

// ReaperFailures counts per-session delete failures and failed sweeps.
var ReaperFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "holoauth_reaper_failures_total",
		Help: "Total number of reaper failures",
	},
)

// TokensIssued counts tokens created per kind.
var TokensIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_tokens_issued_total",
		Help: "Total number of single-use tokens issued",
	},
	[]string{"kind"},
)

// TokensConsumed counts consume attempts per kind and result.
var TokensConsumed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_tokens_consumed_total",
		Help: "Total number of token consume attempts",
	},
	[]string{"kind", "result"},
)

// Logins counts login attempts per result.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(SessionsCreated)
	reg.MustRegister(SessionsRenewed)
	reg.MustRegister(SessionsReaped)
	reg.MustRegister(ReaperFailures)
	reg.MustRegister(TokensIssued)
	reg.MustRegister(TokensConsumed)
	reg.MustRegister(Logins)
}

func recordLogin(result string) {
	Logins.WithLabelValues(result).Inc()
}

func recordTokenConsumed(kind TokenKind, result string) {
	TokensConsumed.WithLabelValues(kind.String(), result).Inc()
}
