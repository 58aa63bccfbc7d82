// Package api is the JSON-over-HTTP client for the chat backend. Paths and
// field names match the backend exactly so the client is a drop-in peer of
// the browser UI.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its Jar should be set,
// since the backend tracks the session with a cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets an overall per-request timeout. Zero keeps the
// transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    &http.Client{Jar: jar},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// FileURL turns a resolved file path such as /files/abc_report.pdf into an
// absolute URL on the backend.
func (c *Client) FileURL(resolved string) string {
	if resolved == "" || strings.HasPrefix(resolved, "http://") || strings.HasPrefix(resolved, "https://") {
		return resolved
	}
	if !strings.HasPrefix(resolved, "/") {
		resolved = "/" + resolved
	}
	return c.baseURL + resolved
}

func (c *Client) Connect(ctx context.Context, req ConnectRequest) (Result, error) {
	return callEnveloped[Result](ctx, c, "connect", http.MethodPost, "/connect", jsonBody(req))
}

func (c *Client) Disconnect(ctx context.Context) (Result, error) {
	return callEnveloped[Result](ctx, c, "disconnect", http.MethodPost, "/disconnect", nil)
}

// Status has no success envelope: a missing session is reported as
// connected=false.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, "status", http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *Client) Rooms(ctx context.Context) (RoomsResponse, error) {
	return callEnveloped[RoomsResponse](ctx, c, "rooms", http.MethodGet, "/rooms", nil)
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (Result, error) {
	return callEnveloped[Result](ctx, c, "create_room", http.MethodPost, "/create_room", jsonBody(req))
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (JoinResponse, error) {
	return callEnveloped[JoinResponse](ctx, c, "join_room", http.MethodPost, "/join_room", jsonBody(roomRequest{RoomID: roomID}))
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) (LeaveResponse, error) {
	return callEnveloped[LeaveResponse](ctx, c, "leave_room", http.MethodPost, "/leave_room", jsonBody(roomRequest{RoomID: roomID}))
}

func (c *Client) RoomInfo(ctx context.Context, roomID string) (RoomInfoResponse, error) {
	return callEnveloped[RoomInfoResponse](ctx, c, "room_info", http.MethodGet, "/room_info/"+url.PathEscape(roomID), nil)
}

// Messages returns the full snapshot for roomID. A missing session comes
// back as success=false with connected=false; that is reported in the
// response, not as an error.
func (c *Client) Messages(ctx context.Context, roomID string) (MessagesResponse, error) {
	path := "/messages"
	if roomID != "" {
		path += "?" + url.Values{"room": []string{roomID}}.Encode()
	}
	var out MessagesResponse
	if err := c.do(ctx, "messages", http.MethodGet, path, nil, &out); err != nil {
		return out, err
	}
	if !out.Success && out.Connected {
		return out, &ServerError{Op: "messages", Message: out.Message}
	}
	return out, nil
}

func (c *Client) Send(ctx context.Context, text, roomID string) (Result, error) {
	return callEnveloped[Result](ctx, c, "send", http.MethodPost, "/send", jsonBody(sendRequest{Message: text, RoomID: roomID}))
}

// Upload posts path as multipart form data. The resulting file message is
// not returned; it shows up in the next message snapshot.
func (c *Client) Upload(ctx context.Context, path, roomID string) (UploadResponse, error) {
	body, contentType, err := multipartFile(path, roomID)
	if err != nil {
		return UploadResponse{}, err
	}
	return callEnveloped[UploadResponse](ctx, c, "upload", http.MethodPost, "/upload", &requestBody{reader: body, contentType: contentType})
}

func (c *Client) ReceivedFiles(ctx context.Context, room string) (ReceivedFilesResponse, error) {
	if strings.TrimSpace(room) == "" {
		room = "all"
	}
	path := "/received_files?" + url.Values{"room": []string{room}}.Encode()
	return callEnveloped[ReceivedFilesResponse](ctx, c, "received_files", http.MethodGet, path, nil)
}

type requestBody struct {
	reader      io.Reader
	contentType string
}

func jsonBody(v any) *requestBody {
	// Request types are plain structs of strings and ints.
	buf, _ := json.Marshal(v)
	return &requestBody{reader: bytes.NewReader(buf), contentType: "application/json"}
}

func multipartFile(path, roomID string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if err := w.WriteField("room_id", roomID); err != nil {
		return nil, "", fmt.Errorf("write room_id: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func callEnveloped[T enveloped](ctx context.Context, c *Client, op, method, path string, body *requestBody) (T, error) {
	var out T
	if err := c.do(ctx, op, method, path, body, &out); err != nil {
		return out, err
	}
	if env := out.envelope(); !env.Success {
		return out, &ServerError{Op: op, Message: env.Message}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body *requestBody, out any) error {
	var reader io.Reader
	if body != nil {
		reader = body.reader
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Str("module", "api.client").Str("op", op).Str("request_id", requestID).Err(err).Msg("request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("module", "api.client").
		Str("op", op).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
