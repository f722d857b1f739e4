// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package websocket pushes poll snapshots to connected browser clients.
//
// The Hub fans out Message envelopes to every registered Client. The
// pollers publish through BroadcastJSON after each cycle, so clients
// receive the full sessions snapshot every session interval and the full
// history snapshot every history interval. There is no per-client
// subscription model; every client gets every message type.
//
// Delivery is best effort. A client that cannot drain its 256-message
// send buffer is disconnected rather than allowed to stall the
// broadcast, and a full broadcast channel drops the message outright.
// Both cases are safe because each snapshot fully supersedes the
// previous one.
//
// The hub runs under the supervision tree via Serve and shuts down by
// closing every client when its context is canceled.
package websocket
