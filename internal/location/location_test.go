package location

import "testing"

func TestEncodeKeepsMainBare(t *testing.T) {
	if got := Encode("main"); got != "" {
		t.Fatalf("expected bare locator for main, got %q", got)
	}
	if got := Encode(""); got != "" {
		t.Fatalf("expected bare locator for empty room, got %q", got)
	}
	if got := Encode("team"); got != "?room=team" {
		t.Fatalf("unexpected locator: %q", got)
	}
	if got := Encode("a b&c"); Parse(got) != "a b&c" {
		t.Fatalf("expected escaped room to round-trip, got %q", got)
	}
}

func TestNewNormalizesInitialLocator(t *testing.T) {
	if got := New("room=team").String(); got != "?room=team" {
		t.Fatalf("expected normalized locator, got %q", got)
	}
	if got := New("?room=main").Room(); got != "" {
		t.Fatalf("expected main to normalize to bare, got %q", got)
	}
	if got := New("%zz").String(); got != "" {
		t.Fatalf("expected malformed locator to be bare, got %q", got)
	}
}

func TestSetRoomSkipsUnchangedLocator(t *testing.T) {
	loc := New("")
	if loc.SetRoom("main") {
		t.Fatalf("main from bare must not push")
	}
	if !loc.SetRoom("team") {
		t.Fatalf("expected push for team")
	}
	if loc.SetRoom("team") {
		t.Fatalf("same room must not push twice")
	}
	if !loc.CanBack() {
		t.Fatalf("expected back history after push")
	}
}

func TestBackForward(t *testing.T) {
	loc := New("")
	loc.SetRoom("team")
	loc.SetRoom("ops")

	if !loc.Back() || loc.Room() != "team" {
		t.Fatalf("expected back to team, got %q", loc.Room())
	}
	if !loc.Back() || loc.Room() != "" {
		t.Fatalf("expected back to bare, got %q", loc.Room())
	}
	if loc.Back() {
		t.Fatalf("expected no further back")
	}
	if !loc.Forward() || loc.Room() != "team" {
		t.Fatalf("expected forward to team, got %q", loc.Room())
	}

	loc.ClearRoom()
	if loc.CanForward() {
		t.Fatalf("push must drop forward entries")
	}
}

func TestReplaceDoesNotGrowHistory(t *testing.T) {
	loc := New("")
	loc.Replace("?room=team")
	if loc.Room() != "team" || loc.CanBack() {
		t.Fatalf("expected in-place replace, got room=%q back=%v", loc.Room(), loc.CanBack())
	}
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	got, err := store.Load(Key("x:9000"))
	if err != nil || got != "" {
		t.Fatalf("expected empty load for unknown key, got %q err=%v", got, err)
	}
	if err := store.Save(Key("x:9000"), "?room=team"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = store.Load(Key("x:9000"))
	if err != nil || got != "?room=team" {
		t.Fatalf("expected saved locator, got %q err=%v", got, err)
	}
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Save(Key("x:9000"), "?room=ops"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Load(Key("x:9000"))
	if err != nil || got != "?room=ops" {
		t.Fatalf("expected persisted locator, got %q err=%v", got, err)
	}
}
