package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"noisechat/internal/api"
	"noisechat/internal/apitest"
)

func newConnectedClient(t *testing.T, srv *apitest.Server, username string) *api.Client {
	t.Helper()
	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Connect(context.Background(), api.ConnectRequest{Username: username, Server: "x", Port: 9000}); err != nil {
		t.Fatalf("connect %s: %v", username, err)
	}
	return client
}

func TestNewClientRejectsNonHTTPScheme(t *testing.T) {
	if _, err := api.NewClient("ftp://example.org"); err == nil {
		t.Fatalf("expected non-http scheme to be rejected")
	}
	client, err := api.NewClient("http://127.0.0.1:5000/")
	if err != nil {
		t.Fatalf("expected http url to be accepted, got %v", err)
	}
	if client.BaseURL() != "http://127.0.0.1:5000" {
		t.Fatalf("expected trailing slash trimmed, got %q", client.BaseURL())
	}
}

func TestConnectKeepsSessionCookie(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Connected || status.Username != "alice" {
		t.Fatalf("expected connected alice, got %+v", status)
	}
	if status.Server != "x:9000" || status.ActiveRoom != "main" {
		t.Fatalf("unexpected server/room: %+v", status)
	}
}

func TestStatusWithoutSessionIsDisconnected(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Connected {
		t.Fatalf("expected disconnected status without a session")
	}
}

func TestServerFailureMapsToServerError(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")

	_, err := client.LeaveRoom(context.Background(), "main")
	var serverErr *api.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected *ServerError, got %T %v", err, err)
	}
	if serverErr.Message != "Cannot leave the Main Room" {
		t.Fatalf("unexpected server message: %q", serverErr.Message)
	}
	if errors.Is(err, api.ErrTransport) {
		t.Fatalf("server error must not match ErrTransport")
	}
	if got := api.UserMessage(err, "Failed to leave room"); got != "Cannot leave the Main Room" {
		t.Fatalf("expected server message to win, got %q", got)
	}
}

func TestNon2xxMapsToTransportError(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")
	srv.SetFailing(true)

	_, err := client.Messages(context.Background(), "main")
	if !errors.Is(err, api.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	var transportErr *api.TransportError
	if !errors.As(err, &transportErr) || transportErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 transport error, got %#v", err)
	}
	if got := api.UserMessage(err, "Network error, please try again"); got != "Network error, please try again" {
		t.Fatalf("expected fallback message, got %q", got)
	}
}

func TestNetworkErrorMapsToTransportError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client, err := api.NewClient(url)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, api.ErrTransport) {
		t.Fatalf("expected ErrTransport for a closed server, got %v", err)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	var seen string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(api.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connected":false}`))
	}))
	defer ts.Close()

	client, err := api.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Status(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(seen) != 36 {
		t.Fatalf("expected uuid request id, got %q", seen)
	}
}

func TestSendAndMessagesRoundTrip(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	alice := newConnectedClient(t, srv, "alice")
	bob := newConnectedClient(t, srv, "bob")

	if _, err := alice.Send(context.Background(), "hi bob", "main"); err != nil {
		t.Fatalf("send: %v", err)
	}

	mine, err := alice.Messages(context.Background(), "main")
	if err != nil {
		t.Fatalf("alice messages: %v", err)
	}
	if len(mine.Messages) != 1 || mine.Messages[0].Type != api.TypeOutgoing {
		t.Fatalf("expected one outgoing message for alice, got %+v", mine.Messages)
	}

	theirs, err := bob.Messages(context.Background(), "main")
	if err != nil {
		t.Fatalf("bob messages: %v", err)
	}
	var incoming []api.Message
	for _, msg := range theirs.Messages {
		if msg.Type == api.TypeIncoming {
			incoming = append(incoming, msg)
		}
	}
	if len(incoming) != 1 || incoming[0].Content != "hi bob" || incoming[0].Sender != "alice" {
		t.Fatalf("expected bob to receive alice's message, got %+v", theirs.Messages)
	}
	if !theirs.Connected || theirs.ActiveRoom != "main" {
		t.Fatalf("expected connected snapshot for main, got %+v", theirs)
	}
}

func TestRoomLifecycle(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")
	ctx := context.Background()

	if _, err := client.CreateRoom(ctx, api.CreateRoomRequest{RoomID: "team", RoomName: "Team Room"}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	rooms, err := client.Rooms(ctx)
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(rooms.Rooms) != 2 || rooms.Rooms[1].ID != "team" {
		t.Fatalf("expected main and team, got %+v", rooms.Rooms)
	}

	joined, err := client.JoinRoom(ctx, "team")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Room.ID != "team" || joined.Room.Name != "Team Room" {
		t.Fatalf("unexpected joined room: %+v", joined.Room)
	}

	info, err := client.RoomInfo(ctx, "team")
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	if len(info.Room.Members) != 1 || !info.Room.Members[0].IsCurrentUser {
		t.Fatalf("expected alice as the only member, got %+v", info.Room.Members)
	}

	left, err := client.LeaveRoom(ctx, "team")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if left.NewActiveRoom != "" {
		t.Fatalf("expected no new_active_room from the fake backend, got %q", left.NewActiveRoom)
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	alice := newConnectedClient(t, srv, "alice")
	bob := newConnectedClient(t, srv, "bob")

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("secret notes"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	resp, err := alice.Upload(context.Background(), path, "main")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.FileInfo == nil || resp.FileInfo.Filename != "notes.txt" || resp.FileInfo.Size != int64(len("secret notes")) {
		t.Fatalf("unexpected file info: %+v", resp.FileInfo)
	}
	if !strings.HasPrefix(resp.FileInfo.ResolvedURL(), "/files/") {
		t.Fatalf("expected /files/ url, got %q", resp.FileInfo.ResolvedURL())
	}

	files, err := bob.ReceivedFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("received files: %v", err)
	}
	if len(files.Files) != 1 || files.Files[0].Sender != "alice" {
		t.Fatalf("expected one file from alice, got %+v", files.Files)
	}
}

func TestUploadMissingFileFailsBeforeRequest(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")

	if _, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), "main"); err == nil {
		t.Fatalf("expected missing file to fail")
	}
	if got := srv.Calls("/upload"); got != 0 {
		t.Fatalf("expected no upload request, got %d", got)
	}
}

func TestFileURLJoinsBase(t *testing.T) {
	client, err := api.NewClient("http://chat.local:5000")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := client.FileURL("/files/a.txt"); got != "http://chat.local:5000/files/a.txt" {
		t.Fatalf("unexpected file url: %q", got)
	}
	if got := client.FileURL("https://cdn.example/a.txt"); got != "https://cdn.example/a.txt" {
		t.Fatalf("absolute url must pass through, got %q", got)
	}
}

func TestResolvedURLPriority(t *testing.T) {
	cases := []struct {
		info api.FileInfo
		want string
	}{
		{api.FileInfo{DownloadURL: "/d", URL: "/u", PublicURL: "/p"}, "/d"},
		{api.FileInfo{URL: "/u", PublicURL: "/p"}, "/u"},
		{api.FileInfo{PublicURL: "/p", StoredFilename: "s"}, "/p"},
		{api.FileInfo{StoredFilename: "abc_report.pdf"}, "/files/abc_report.pdf"},
		{api.FileInfo{}, ""},
	}
	for _, tc := range cases {
		if got := tc.info.ResolvedURL(); got != tc.want {
			t.Fatalf("ResolvedURL(%+v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}

func TestSecurityTestLifecycle(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SetDiagnosticsPolls(2)
	client := newConnectedClient(t, srv, "alice")
	ctx := context.Background()

	started, err := client.StartSecurityTest(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != api.RunRunning || len(started.Tests) != len(api.SecurityTests) {
		t.Fatalf("unexpected start response: %+v", started)
	}
	first, err := client.SecurityTestStatus(ctx, "all")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if first.Status != api.RunRunning || first.Results != nil {
		t.Fatalf("expected running without results, got %+v", first)
	}
	done, err := client.SecurityTestStatus(ctx, "all")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if done.Status != api.RunCompleted || !done.Results["mitm"].Passed() {
		t.Fatalf("expected completed results, got %+v", done)
	}
}

func TestSingleSecurityTestReturnsResult(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SetDiagnosticsPolls(0)
	client := newConnectedClient(t, srv, "alice")

	if _, err := client.StartSecurityTest(context.Background(), "kci"); err != nil {
		t.Fatalf("start: %v", err)
	}
	status, err := client.SecurityTestStatus(context.Background(), "kci")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Result == nil || status.Result.Status != "PASS" {
		t.Fatalf("expected single kci result, got %+v", status)
	}
}

func TestPerformanceTestLifecycle(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SetDiagnosticsPolls(1)
	client := newConnectedClient(t, srv, "alice")
	ctx := context.Background()

	started, err := client.StartPerformanceTest(ctx, api.PerformanceTestRequest{NumMessages: 10, MessageSize: 64, Protocols: []string{"noise", "unencrypted"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Config.OutputFormat != "text" || started.Config.NumMessages != 10 {
		t.Fatalf("expected echoed config with default format, got %+v", started.Config)
	}
	status, err := client.PerformanceTestStatus(ctx, "text")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != api.RunCompleted || len(status.Results) != 2 {
		t.Fatalf("expected results for two protocols, got %+v", status)
	}
	if status.Results["unencrypted"].Throughput <= status.Results["noise"].Throughput {
		t.Fatalf("unexpected metrics: %+v", status.Results)
	}
}

func TestDiagnosticsWithoutSession(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	_, err = client.StartSecurityTest(context.Background(), "all")
	var serverErr *api.ServerError
	if !errors.As(err, &serverErr) || serverErr.Message != "Not connected to any server" {
		t.Fatalf("expected server error, got %v", err)
	}
	_, err = client.Debug(context.Background())
	if !errors.As(err, &serverErr) || serverErr.Message != "Not connected" {
		t.Fatalf("expected debug error field mapped to server error, got %v", err)
	}
}

func TestDebugAndMessageDetails(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client := newConnectedClient(t, srv, "alice")
	ctx := context.Background()

	if _, err := client.Send(ctx, "hi", "main"); err != nil {
		t.Fatalf("send: %v", err)
	}
	snapshot, err := client.Messages(ctx, "main")
	if err != nil || len(snapshot.Messages) != 1 {
		t.Fatalf("messages: %v %+v", err, snapshot)
	}

	info, err := client.Debug(ctx)
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	if info.Connection.Username != "alice" || info.Connection.MessagesCount != 1 || info.Connection.ActiveRoom != "main" {
		t.Fatalf("unexpected debug info: %+v", info.Connection)
	}

	details, err := client.MessageDetails(ctx, snapshot.Messages[0].MessageID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.FullEncryptedHex != "6869" {
		t.Fatalf("unexpected ciphertext: %q", details.FullEncryptedHex)
	}
}
