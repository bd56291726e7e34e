package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

func TestIsTerminalStatus(t *testing.T) {
	cases := map[string]bool{
		MessageStatusStreaming: false,
		MessageStatusComplete:  true,
		MessageStatusError:     true,
		"":                     false,
	}
	for status, want := range cases {
		if got := IsTerminalStatus(status); got != want {
			t.Fatalf("IsTerminalStatus(%q): want=%v got=%v", status, want, got)
		}
	}
	var m *ChatMessage
	if m.IsTerminal() {
		t.Fatalf("nil message must not be terminal")
	}
}

func TestTitleFromPrompt(t *testing.T) {
	if got := TitleFromPrompt("  hello\n  world "); got != "hello world" {
		t.Fatalf("collapse: %q", got)
	}
	if got := TitleFromPrompt("   "); got != DefaultThreadTitle {
		t.Fatalf("blank: %q", got)
	}
	long := TitleFromPrompt(strings.Repeat("é", 100))
	if utf8.RuneCountInString(long) != maxTitleRunes+3 || !strings.HasSuffix(long, "...") {
		t.Fatalf("truncate: %q", long)
	}
}

func TestThreadReserveSeq(t *testing.T) {
	th := &ChatThread{NextSeq: 4}
	got := th.ReserveSeq(2)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 || th.NextSeq != 4 {
		t.Fatalf("ReserveSeq: %v next=%d", got, th.NextSeq)
	}
	if th.OwnedBy(uuid.Nil) {
		t.Fatalf("nil user must not own a thread")
	}
}
