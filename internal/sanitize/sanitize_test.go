package sanitize

import "testing"

func TestTextStripsMarkup(t *testing.T) {
	got := Text(`<b>hello</b> <script>alert(1)</script>world`)
	if got != "hello world" {
		t.Fatalf("unexpected sanitized text: %q", got)
	}
}

func TestTextKeepsLiteralEntities(t *testing.T) {
	if got := Text("fish &amp; chips < 3"); got != "fish & chips < 3" {
		t.Fatalf("expected entities decoded for the terminal, got %q", got)
	}
}

func TestTextDropsEscapeSequences(t *testing.T) {
	got := Text("red\x1b[31m alert\x07\nnext")
	if got != "red[31m alert\nnext" {
		t.Fatalf("expected control characters removed, got %q", got)
	}
}

func TestNameCollapsesAndFallsBack(t *testing.T) {
	if got := Name("  bob \n smith ", "anon"); got != "bob smith" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := Name("<i></i>", "anon"); got != "anon" {
		t.Fatalf("expected fallback for empty name, got %q", got)
	}
}
