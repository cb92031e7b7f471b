package tgui

import (
	"reflect"
	"testing"
)

func TestEscAndWrappers(t *testing.T) {
	if got := Esc(`<b> & "q"`).String(); got != "&lt;b&gt; &amp; &#34;q&#34;" {
		t.Fatalf("Esc = %q", got)
	}
	if got := B("a<b").String(); got != "<b>a&lt;b</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := I("x").String(); got != "<i>x</i>" {
		t.Fatalf("I = %q", got)
	}
	if got := Code("y").String(); got != "<code>y</code>" {
		t.Fatalf("Code = %q", got)
	}
}

func TestLinkEscapesBothParts(t *testing.T) {
	got := Link(`Sigur <Rós>`, `https://x.test/?a=1&b="2"`).String()
	want := `<a href="https://x.test/?a=1&amp;b=&#34;2&#34;">Sigur &lt;Rós&gt;</a>`
	if got != want {
		t.Fatalf("Link = %q, want %q", got, want)
	}
}

func TestJoinHSkipsBlanks(t *testing.T) {
	got := JoinH(" | ", H("a"), H("  "), H(""), H("b")).String()
	if got != "a | b" {
		t.Fatalf("JoinH = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"héllo", 2, "hé…"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSplitByLinesPrefersLineBreaks(t *testing.T) {
	got := SplitByLines("a\nb\nc", 3)
	want := []string{"a\nb", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitByLinesHardCutsLongLine(t *testing.T) {
	got := SplitByLines("abcdefgh", 3)
	want := []string{"abc", "def", "gh"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitByLinesExactLimitLine(t *testing.T) {
	got := SplitByLines("abc\ndef", 3)
	want := []string{"abc", "def"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i, chunk := range got {
		if chunk == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestSplitByLinesShortTextIsOneChunk(t *testing.T) {
	got := SplitByLines("short", MaxMessageLen)
	if len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %q, want single chunk", got)
	}
}
