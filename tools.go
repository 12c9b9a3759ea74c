// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main pins the test runners used by the unit and integration suites.
package main

import (
	// ginkgo CLI drives the integration suites (-tags=integration).
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/onsi/gomega"

	// Unit tests and mockery-generated mocks.
	_ "github.com/stretchr/testify/mock"
)
