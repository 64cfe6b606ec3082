// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so sampling code can be
// tested without sleeping.
//
// Production code takes a Clock and passes clock.Real(). Tests pass a
// FakeClock and drive it explicitly:
//
//	c := clock.Fake(time.Unix(100, 0))
//	go sampler.run(c)
//	c.WaitForTimers(1)     // the sampler registered its ticker
//	c.Advance(time.Second) // fires it deterministically
//
// The delta-based usage counters in this repo divide by elapsed wall
// time; a FakeClock makes those divisions exact in tests.
package clock
