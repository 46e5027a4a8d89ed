// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code receives Real(). Tests receive Fake(start), whose
// time only moves when the test calls Advance or Set. Timers and
// tickers registered on a FakeClock fire synchronously inside Advance,
// and WaitForTimers lets a test block until a goroutine has registered
// the timer it is about to fire, which removes the sleep-and-hope
// pattern from timing tests.
package clock
