// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSent   = "sent"
	resultFailed = "failed"
)

var mailDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "holoauth_mail_deliveries_total",
	Help: "Token emails handed to the transport, by kind and result",
}, []string{"kind", "result"})

// RegisterMetrics registers mail metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(mailDeliveries)
}
