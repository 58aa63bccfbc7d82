package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"noisechat/internal/api"
	"noisechat/internal/location"
)

var errOffline = &api.TransportError{Op: "test", Err: errors.New("connection refused")}

// fakeBackend answers from canned fields and records every call.
type fakeBackend struct {
	status    api.Status
	statusErr error

	messages     map[string][]api.Message
	messagesErr  error
	disconnected bool

	members map[string][]api.Member
	rooms   []api.Room

	joinErr   map[string]error
	leaveResp api.LeaveResponse
	leaveErr  error
	sendErr   error
	connErr   error

	ignoreDisconnect bool

	// diagPending is how many status polls report running before a run
	// completes.
	diagPending int
	diagErr     error
	security    map[string]api.TestOutcome
	performance map[string]api.ProtocolMetrics

	calls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages: map[string][]api.Message{},
		members:  map[string][]api.Member{},
		joinErr:  map[string]error{},
		rooms: []api.Room{
			{ID: "main", Name: "Main Room"},
			{ID: "team", Name: "Team Room"},
			{ID: "ops", Name: "Ops"},
		},
	}
}

func (f *fakeBackend) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Connect(_ context.Context, req api.ConnectRequest) (api.Result, error) {
	f.record("connect %s", req.Username)
	if f.connErr != nil {
		return api.Result{}, f.connErr
	}
	f.status = api.Status{Connected: true, Username: req.Username, Server: fmt.Sprintf("%s:%d", req.Server, req.Port)}
	return api.Result{Envelope: api.Envelope{Success: true, Message: "Connected"}}, nil
}

func (f *fakeBackend) Disconnect(context.Context) (api.Result, error) {
	f.record("disconnect")
	if !f.ignoreDisconnect {
		f.status = api.Status{}
	}
	return api.Result{Envelope: api.Envelope{Success: true}}, nil
}

func (f *fakeBackend) Status(context.Context) (api.Status, error) {
	f.record("status")
	return f.status, f.statusErr
}

func (f *fakeBackend) Rooms(context.Context) (api.RoomsResponse, error) {
	f.record("rooms")
	return api.RoomsResponse{Envelope: api.Envelope{Success: true}, Rooms: f.rooms}, nil
}

func (f *fakeBackend) CreateRoom(_ context.Context, req api.CreateRoomRequest) (api.Result, error) {
	f.record("create %s", req.RoomID)
	f.rooms = append(f.rooms, api.Room{ID: req.RoomID, Name: req.RoomName})
	return api.Result{Envelope: api.Envelope{Success: true}}, nil
}

func (f *fakeBackend) JoinRoom(_ context.Context, roomID string) (api.JoinResponse, error) {
	f.record("join %s", roomID)
	if err := f.joinErr[roomID]; err != nil {
		return api.JoinResponse{}, err
	}
	name := roomID
	for _, r := range f.rooms {
		if r.ID == roomID {
			name = r.Name
		}
	}
	return api.JoinResponse{Envelope: api.Envelope{Success: true}, Room: api.Room{ID: roomID, Name: name}}, nil
}

func (f *fakeBackend) LeaveRoom(_ context.Context, roomID string) (api.LeaveResponse, error) {
	f.record("leave %s", roomID)
	if f.leaveErr != nil {
		return api.LeaveResponse{}, f.leaveErr
	}
	resp := f.leaveResp
	resp.Success = true
	return resp, nil
}

func (f *fakeBackend) RoomInfo(_ context.Context, roomID string) (api.RoomInfoResponse, error) {
	f.record("room_info %s", roomID)
	return api.RoomInfoResponse{
		Envelope: api.Envelope{Success: true},
		Room:     api.Room{ID: roomID, Members: f.members[roomID]},
	}, nil
}

func (f *fakeBackend) Messages(_ context.Context, roomID string) (api.MessagesResponse, error) {
	f.record("messages %s", roomID)
	if f.messagesErr != nil {
		return api.MessagesResponse{}, f.messagesErr
	}
	return api.MessagesResponse{
		Envelope:  api.Envelope{Success: true},
		Connected: !f.disconnected,
		Messages:  f.messages[roomID],
	}, nil
}

func (f *fakeBackend) Send(_ context.Context, text, roomID string) (api.Result, error) {
	f.record("send %s %s", roomID, text)
	if f.sendErr != nil {
		return api.Result{}, f.sendErr
	}
	return api.Result{Envelope: api.Envelope{Success: true}}, nil
}

func (f *fakeBackend) Upload(_ context.Context, path, roomID string) (api.UploadResponse, error) {
	f.record("upload %s", roomID)
	return api.UploadResponse{Envelope: api.Envelope{Success: true}}, nil
}

func (f *fakeBackend) ReceivedFiles(_ context.Context, room string) (api.ReceivedFilesResponse, error) {
	f.record("received_files %s", room)
	return api.ReceivedFilesResponse{Envelope: api.Envelope{Success: true}}, nil
}

func (f *fakeBackend) StartSecurityTest(_ context.Context, test string) (api.SecurityTestStart, error) {
	f.record("security_test %s", test)
	if f.diagErr != nil {
		return api.SecurityTestStart{}, f.diagErr
	}
	return api.SecurityTestStart{Envelope: api.Envelope{Success: true, Message: "Security tests started"}, Status: api.RunRunning}, nil
}

func (f *fakeBackend) SecurityTestStatus(_ context.Context, test string) (api.SecurityTestStatus, error) {
	f.record("security_test_status %s", test)
	if f.diagPending > 0 {
		f.diagPending--
		return api.SecurityTestStatus{Envelope: api.Envelope{Success: true}, Status: api.RunRunning, Progress: 40}, nil
	}
	out := api.SecurityTestStatus{Envelope: api.Envelope{Success: true}, Status: api.RunCompleted, Progress: 100}
	if test == "all" {
		out.Results = f.security
	} else if outcome, ok := f.security[test]; ok {
		out.Result = &outcome
	}
	return out, nil
}

func (f *fakeBackend) StartPerformanceTest(_ context.Context, req api.PerformanceTestRequest) (api.PerformanceTestStart, error) {
	f.record("performance_test %s", strings.Join(req.Protocols, ","))
	if f.diagErr != nil {
		return api.PerformanceTestStart{}, f.diagErr
	}
	return api.PerformanceTestStart{Envelope: api.Envelope{Success: true}, Status: api.RunRunning, Config: req}, nil
}

func (f *fakeBackend) PerformanceTestStatus(_ context.Context, format string) (api.PerformanceTestStatus, error) {
	f.record("performance_test_status %s", format)
	if f.diagPending > 0 {
		f.diagPending--
		return api.PerformanceTestStatus{Envelope: api.Envelope{Success: true}, Status: api.RunRunning, Progress: 80}, nil
	}
	return api.PerformanceTestStatus{Envelope: api.Envelope{Success: true}, Status: api.RunCompleted, Progress: 100, Results: f.performance}, nil
}

func (f *fakeBackend) MessageDetails(_ context.Context, messageID string) (api.MessageDetails, error) {
	f.record("message_details %s", messageID)
	return api.MessageDetails{Envelope: api.Envelope{Success: true}, FullEncryptedHex: "cafe"}, nil
}

func (f *fakeBackend) Debug(context.Context) (api.DebugInfo, error) {
	f.record("debug")
	return api.DebugInfo{Connection: api.ConnectionInfo{Status: true, Username: f.status.Username, HandshakeComplete: true, ActiveRoom: f.status.ActiveRoom}}, nil
}

// armed is a timer the engine scheduled; tests fire it explicitly.
type armed struct {
	d   time.Duration
	msg tea.Msg
}

type armedMsg armed

type memStore struct{ values map[string]string }

func (s *memStore) Load(key string) (string, error) { return s.values[key], nil }

func (s *memStore) Save(key, value string) error {
	s.values[key] = value
	return nil
}

type harness struct {
	t       *testing.T
	backend *fakeBackend
	engine  *Engine
	timers  []armed
}

func newHarness(t *testing.T, loc *location.Location, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{t: t, backend: newFakeBackend()}
	h.engine = New(h.backend, loc, h.options(tweak))
	return h
}

// options returns engine options whose timers are recorded by h.
func (h *harness) options(tweak func(*Options)) Options {
	opts := DefaultOptions()
	opts.Logger = zerolog.Nop()
	opts.Schedule = func(d time.Duration, msg tea.Msg) tea.Cmd {
		return func() tea.Msg { return armedMsg{d: d, msg: msg} }
	}
	if tweak != nil {
		tweak(&opts)
	}
	return opts
}

// collect runs cmd and everything it batches, arming timers, and returns
// the completion messages without delivering them.
func (h *harness) collect(cmd tea.Cmd) []tea.Msg {
	var out []tea.Msg
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case armedMsg:
			h.timers = append(h.timers, armed(msg))
		default:
			out = append(out, msg)
		}
	}
	return out
}

// run delivers everything cmd produces until the engine goes quiet.
func (h *harness) run(cmd tea.Cmd) {
	pending := h.collect(cmd)
	for steps := 0; len(pending) > 0; steps++ {
		if steps > 1000 {
			h.t.Fatalf("engine did not settle")
		}
		msg := pending[0]
		pending = pending[1:]
		pending = append(pending, h.collect(h.engine.Update(msg))...)
	}
}

func (h *harness) deliver(msg tea.Msg) {
	h.run(h.engine.Update(msg))
}

// fire runs the oldest armed timer whose message matches and drops it.
func (h *harness) fire(match func(tea.Msg) bool) bool {
	for i, timer := range h.timers {
		if match(timer.msg) {
			h.timers = append(h.timers[:i], h.timers[i+1:]...)
			h.deliver(timer.msg)
			return true
		}
	}
	return false
}

func (h *harness) tick(loop Loop) {
	h.t.Helper()
	ok := h.fire(func(msg tea.Msg) bool {
		tick, isTick := msg.(pollTickMsg)
		return isTick && tick.loop == loop && h.engine.sched.accept(tick)
	})
	if !ok {
		h.t.Fatalf("no live %s tick armed", loop)
	}
}

func (h *harness) armedCount(match func(tea.Msg) bool) int {
	n := 0
	for _, timer := range h.timers {
		if match(timer.msg) {
			n++
		}
	}
	return n
}

// connect brings the engine to the connected state via Init and Connect.
func (h *harness) connect() {
	h.t.Helper()
	h.run(h.engine.Init())
	h.run(h.engine.Connect("alice", "x", 9000))
	if !h.engine.State().Session.Connected {
		h.t.Fatalf("expected connected session, calls=%v", h.backend.calls)
	}
}

func (h *harness) texts() []string {
	var out []string
	for _, entry := range h.engine.View().Entries {
		out = append(out, entry.Text)
	}
	return out
}

func incoming(content, sender string) api.Message {
	return api.Message{Type: api.TypeIncoming, Content: content, Sender: sender}
}

func outgoing(content string) api.Message {
	return api.Message{Type: api.TypeOutgoing, Content: content, Sender: "alice"}
}

func system(content string) api.Message {
	return api.Message{Type: api.TypeSystem, Content: content}
}
