// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package tautulli

// TautulliTerminate represents the API response from Tautulli's
// terminate_session endpoint. The data payload is empty; only the
// result and message matter.
type TautulliTerminate struct {
	Response TautulliTerminateResponse `json:"response"`
}

type TautulliTerminateResponse struct {
	Result  string      `json:"result"`
	Message *string     `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}
