package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Run states reported by the diagnostics status endpoints.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
)

// SecurityTests lists the checks the backend runs for test "all".
var SecurityTests = []string{"handshake", "encryption", "replay", "authentication", "kci", "mitm"}

// Protocols accepted by the performance comparison. "all" expands to
// every one of them on the backend.
var Protocols = []string{"noise", "tls13", "plain_tls", "unencrypted"}

type SecurityTestRequest struct {
	Test string `json:"test"`
}

type SecurityTestStart struct {
	Envelope
	Status string   `json:"status"`
	Tests  []string `json:"tests,omitempty"`
	Test   string   `json:"test,omitempty"`
}

type TestOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (o TestOutcome) Passed() bool { return strings.EqualFold(o.Status, "PASS") }

// SecurityTestStatus carries Results for a full run and Result for a
// single named test.
type SecurityTestStatus struct {
	Envelope
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Results  map[string]TestOutcome `json:"results"`
	Result   *TestOutcome           `json:"result,omitempty"`
}

type PerformanceTestRequest struct {
	NumMessages  int      `json:"num_messages"`
	MessageSize  int      `json:"message_size"`
	Protocols    []string `json:"protocols"`
	OutputFormat string   `json:"output_format"`
}

type PerformanceTestStart struct {
	Envelope
	Status string                 `json:"status"`
	Config PerformanceTestRequest `json:"config"`
}

// ProtocolMetrics is one protocol's row. Times are in seconds, memory in
// MB and throughput in messages per second.
type ProtocolMetrics struct {
	HandshakeTime float64 `json:"handshake_time"`
	AvgLatency    float64 `json:"avg_latency"`
	MinLatency    float64 `json:"min_latency"`
	MaxLatency    float64 `json:"max_latency"`
	Throughput    float64 `json:"throughput"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   float64 `json:"memory_usage"`
}

type PerformanceTestStatus struct {
	Envelope
	Status   string                     `json:"status"`
	Progress int                        `json:"progress"`
	Results  map[string]ProtocolMetrics `json:"results"`
	CSVURL   string                     `json:"csv_url,omitempty"`
	JSONURL  string                     `json:"json_url,omitempty"`
}

type MessageDetails struct {
	Envelope
	FullEncryptedHex string `json:"full_encrypted_hex"`
}

type ConnectionInfo struct {
	Status            bool   `json:"status"`
	Username          string `json:"username"`
	HandshakeComplete bool   `json:"handshake_complete"`
	MessagesCount     int    `json:"messages_count"`
	ActiveRoom        string `json:"active_room"`
}

// DebugInfo has no success envelope; a missing session comes back as a
// bare error field.
type DebugInfo struct {
	Error      string         `json:"error,omitempty"`
	Connection ConnectionInfo `json:"connection"`
}

func (c *Client) StartSecurityTest(ctx context.Context, test string) (SecurityTestStart, error) {
	if strings.TrimSpace(test) == "" {
		test = "all"
	}
	return callEnveloped[SecurityTestStart](ctx, c, "security_test", http.MethodPost, "/security_test", jsonBody(SecurityTestRequest{Test: test}))
}

func (c *Client) SecurityTestStatus(ctx context.Context, test string) (SecurityTestStatus, error) {
	path := "/security_test_status"
	if test != "" && test != "all" {
		path += "?" + url.Values{"test": []string{test}}.Encode()
	}
	return callEnveloped[SecurityTestStatus](ctx, c, "security_test_status", http.MethodGet, path, nil)
}

func (c *Client) StartPerformanceTest(ctx context.Context, req PerformanceTestRequest) (PerformanceTestStart, error) {
	if req.OutputFormat == "" {
		req.OutputFormat = "text"
	}
	return callEnveloped[PerformanceTestStart](ctx, c, "performance_test", http.MethodPost, "/performance_test", jsonBody(req))
}

func (c *Client) PerformanceTestStatus(ctx context.Context, format string) (PerformanceTestStatus, error) {
	path := "/performance_test_status"
	if format != "" {
		path += "?" + url.Values{"format": []string{format}}.Encode()
	}
	return callEnveloped[PerformanceTestStatus](ctx, c, "performance_test_status", http.MethodGet, path, nil)
}

func (c *Client) MessageDetails(ctx context.Context, messageID string) (MessageDetails, error) {
	path := "/message_details?" + url.Values{"message_id": []string{messageID}}.Encode()
	return callEnveloped[MessageDetails](ctx, c, "message_details", http.MethodGet, path, nil)
}

func (c *Client) Debug(ctx context.Context) (DebugInfo, error) {
	var out DebugInfo
	if err := c.do(ctx, "debug", http.MethodGet, "/debug", nil, &out); err != nil {
		return out, err
	}
	if out.Error != "" {
		return out, &ServerError{Op: "debug", Message: out.Error}
	}
	return out, nil
}
