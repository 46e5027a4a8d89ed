// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the bounded-wait helpers shared by iostream
// tests.
//
// Streaming tests spend most of their time waiting for something to
// arrive on a channel. [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout so that a lost wakeup or a stuck session fails
// the test with a message instead of hanging the run. They are the
// only place tests touch real wall-clock timeouts; everything else
// drives time through clock.Fake.
package testutil
