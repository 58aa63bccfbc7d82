package engine

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
	"noisechat/internal/apitest"
)

func newLiveHarness(t *testing.T, srv *apitest.Server) *harness {
	t.Helper()
	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h := &harness{t: t}
	h.engine = New(client, nil, h.options(nil))
	return h
}

func TestEndToEndAgainstBackend(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.AddRoom("team", "Team Room", "")

	h := newLiveHarness(t, srv)
	h.run(h.engine.Init())
	h.run(h.engine.Connect("alice", "x", 9000))

	if !h.engine.State().Session.Connected || h.engine.State().ActiveRoomID != "main" {
		t.Fatalf("expected connected in main, state=%+v", h.engine.State())
	}

	srv.Deliver("main", "bob", "hi")
	h.tick(LoopMessages)
	h.tick(LoopMessages)
	messages, notices := h.engine.View().Counts()
	if messages != 1 || notices != 1 {
		t.Fatalf("expected welcome plus one message, got %v", h.texts())
	}

	h.run(h.engine.Join("team"))
	if h.engine.State().ActiveRoomID != "team" || h.engine.Location().Room() != "team" {
		t.Fatalf("expected team active with ?room=team")
	}
	for _, text := range h.texts() {
		if text == "hi" {
			t.Fatalf("main message leaked into team: %v", h.texts())
		}
	}
	h.tick(LoopMembers)
	members := h.engine.View().Members
	if len(members) != 1 || members[0].Username != "alice" || !members[0].IsCurrentUser {
		t.Fatalf("unexpected team members: %+v", members)
	}

	h.run(h.engine.Send("hello team"))
	if got := h.texts(); got[len(got)-1] != "hello team" {
		t.Fatalf("expected sent message to appear after the follow-up sync, got %v", got)
	}

	h.run(h.engine.Leave(""))
	if srv.Calls("/leave_room") != 1 {
		t.Fatalf("expected one leave request")
	}
	joins := srv.Calls("/join_room")
	if !h.fire(func(msg tea.Msg) bool { _, ok := msg.(rejoinMsg); return ok }) {
		t.Fatalf("expected rejoin armed")
	}
	if srv.Calls("/join_room") != joins+1 || h.engine.State().ActiveRoomID != "main" {
		t.Fatalf("expected automatic rejoin of main")
	}

	srv.SetFailing(true)
	h.tick(LoopStatus)
	if h.engine.State().Session.Connected {
		t.Fatalf("expected fail-safe disconnect when the backend goes away")
	}
}

func TestEndToEndServerDropsSession(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	h := newLiveHarness(t, srv)
	h.run(h.engine.Init())
	h.run(h.engine.Connect("alice", "x", 9000))
	srv.DropSession("alice")

	h.tick(LoopMessages)

	if h.engine.State().Session.Connected {
		t.Fatalf("expected the disconnected snapshot to trigger a status check and disconnect")
	}
	if h.engine.View().ChatVisible {
		t.Fatalf("expected chat hidden")
	}
}

func TestEndToEndSecurityRun(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SetDiagnosticsPolls(2)

	h := newLiveHarness(t, srv)
	h.run(h.engine.Init())
	h.run(h.engine.Connect("alice", "x", 9000))

	h.run(h.engine.RunSecurityTest("all"))
	h.tick(LoopDiagnostics)
	if !h.engine.View().Report.Running {
		t.Fatalf("expected the run to be in progress after one poll")
	}
	h.tick(LoopDiagnostics)

	report := h.engine.View().Report
	if passed, total := report.Passed(); report.Running || passed != len(api.SecurityTests) || total != len(api.SecurityTests) {
		t.Fatalf("expected every check passed, got %+v", report)
	}
	if srv.Calls("/security_test_status") != 2 {
		t.Fatalf("expected two status polls, got %d", srv.Calls("/security_test_status"))
	}
}
