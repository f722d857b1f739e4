// Streamwatch - Tautulli Session Monitoring and Statistics
// Copyright 2026 The Streamwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamwatch/streamwatch

package tautulli

// TautulliServerInfo represents the API response from get_server_info endpoint
type TautulliServerInfo struct {
	Response TautulliServerInfoResponse `json:"response"`
}

type TautulliServerInfoResponse struct {
	Result  string                 `json:"result"`
	Message *string                `json:"message,omitempty"`
	Data    TautulliServerInfoData `json:"data"`
}

type TautulliServerInfoData struct {
	PMSIdentifier      string `json:"machine_identifier"`
	PMSName            string `json:"plex_server_name"`
	PMSVersion         string `json:"plex_server_version"`
	PMSPlatform        string `json:"plex_server_platform"`
	Platform           string `json:"platform"`
	PMSPlatformVersion string `json:"platform_version"`
	PMSIP              string `json:"pms_ip"`
	PMSPort            int    `json:"pms_port"`
	PMSURL             string `json:"pms_url"`
	PMSSSLEnabled      int    `json:"pms_ssl"`
	PMSIsRemote        int    `json:"pms_is_remote"`
}
