package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// connectionStatus is the connection.status payload.
type connectionStatus struct {
	ConnectionID string `json:"connection_id"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DB           int    `json:"db"`
	Username     string `json:"username,omitempty"`
	ClusterMode  bool   `json:"cluster_mode"`

	TLS tlsStatus `json:"tls"`

	AuthFlow   string            `json:"auth_flow"`
	Credential *credentialStatus `json:"credential,omitempty"`
}

type tlsStatus struct {
	Enabled   bool   `json:"enabled"`
	CertReqs  string `json:"cert_reqs,omitempty"`
	MutualTLS bool   `json:"mutual_tls"`
}

// credentialStatus reports lifecycle data only, never the credential value.
type credentialStatus struct {
	State      string `json:"state"`
	Expires    bool   `json:"expires"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	AcquiredAt string `json:"acquired_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := connectionStatus{
		ConnectionID: s.connectionID,
		Host:         s.profile.Host,
		Port:         s.profile.Port,
		DB:           s.profile.DB,
		Username:     s.profile.Username,
		ClusterMode:  s.profile.ClusterMode,
		TLS: tlsStatus{
			Enabled:   s.profile.TLS.Enabled,
			CertReqs:  string(s.profile.TLS.CertReqs),
			MutualTLS: s.profile.TLS.Certfile != "" && s.profile.TLS.Keyfile != "",
		},
		AuthFlow: s.flow.Flow.String(),
	}

	if s.creds != nil {
		status.Credential = s.credentialStatus()
	}

	return marshalResult(status)
}

func (s *Server) credentialStatus() *credentialStatus {
	cs := &credentialStatus{State: s.creds.State().String()}

	cred, err := s.creds.Current()
	if err != nil {
		cs.Error = err.Error()
		return cs
	}

	cs.Expires = cred.Expires()
	if cred.Expires() {
		cs.ExpiresAt = cred.ExpiresAt.Format(time.RFC3339)
	}
	if !cred.AcquiredAt.IsZero() {
		cs.AcquiredAt = cred.AcquiredAt.Format(time.RFC3339)
	}
	return cs
}

// pingResult is the connection.ping payload.
type pingResult struct {
	ConnectionID string `json:"connection_id"`
	Addr         string `json:"addr"`
	LatencyMS    int64  `json:"latency_ms"`
}

func (s *Server) handlePing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("ping to %s failed: %v", s.profile.Addr(), err)
		return mcp.NewToolResultError(fmt.Sprintf("ping to %s failed: %v", s.profile.Addr(), err)), nil
	}

	return marshalResult(pingResult{
		ConnectionID: s.connectionID,
		Addr:         s.profile.Addr(),
		LatencyMS:    time.Since(start).Milliseconds(),
	})
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
