// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

// Package tautulli defines the wire types for Tautulli API v2 responses.
//
// Every endpoint wraps its payload in a response envelope:
//
//	{"response": {"result": "success", "message": null, "data": {...}}}
//
// Nullable fields use pointer types so a JSON null can be distinguished
// from a genuine zero value. Tautulli returns null for fields like
// session_key, user_id, duration and paused_counter in edge cases
// (live TV, deleted users, imported records), and treating those as
// zeros would skew the statistics built on top of them.
package tautulli
