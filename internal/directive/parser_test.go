package directive

import (
	"strings"
	"testing"
)

func TestParse_InlineDirectives(t *testing.T) {
	text := "sure thing [ACTION:write|/tmp/a.txt|hello] and [ACTION:run|ls -la] done"
	res := Parse(text)

	if len(res.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(res.Directives))
	}
	if res.Directives[0].Action != "write" || res.Directives[0].RawArgument != "/tmp/a.txt|hello" {
		t.Errorf("first directive wrong: %+v", res.Directives[0])
	}
	if res.Directives[1].Action != "run" || res.Directives[1].RawArgument != "ls -la" {
		t.Errorf("second directive wrong: %+v", res.Directives[1])
	}
	if strings.Contains(res.Cleaned, "[ACTION:") {
		t.Errorf("cleaned text still contains a tag: %q", res.Cleaned)
	}
}

func TestParse_CleanedPreservesSurroundingText(t *testing.T) {
	res := Parse("ok [ACTION:run|rm -rf /] done")
	if res.Cleaned != "ok  done" {
		t.Errorf("cleaned wrong. expected=%q, got=%q", "ok  done", res.Cleaned)
	}
	if len(res.Directives) != 1 || res.Directives[0].RawArgument != "rm -rf /" {
		t.Errorf("directives wrong: %+v", res.Directives)
	}
}

func TestParse_SourceOrderPreserved(t *testing.T) {
	text := "[ACTION:a|1] mid [ACTION:b|2] mid [ACTION:c|3]"
	res := Parse(text)
	if len(res.Directives) != 3 {
		t.Fatalf("expected 3 directives, got %d", len(res.Directives))
	}
	for i, want := range []string{"a", "b", "c"} {
		if res.Directives[i].Action != want {
			t.Errorf("directive %d out of order: got %q", i, res.Directives[i].Action)
		}
	}
}

func TestParse_DeduplicatesIdenticalPairs(t *testing.T) {
	text := "[ACTION:run|uptime] first [ACTION:run|uptime] again [ACTION:run|uptime ]"
	res := Parse(text)
	if len(res.Directives) != 1 {
		t.Fatalf("expected 1 directive after dedup, got %d", len(res.Directives))
	}
	if res.Directives[0].RawArgument != "uptime" {
		t.Errorf("kept wrong occurrence: %+v", res.Directives[0])
	}
}

func TestParse_DistinctArgumentsKept(t *testing.T) {
	text := "[ACTION:run|uptime] and [ACTION:run|df -h]"
	res := Parse(text)
	if len(res.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(res.Directives))
	}
}

func TestParse_BlockForm(t *testing.T) {
	text := "here you go\n[ACTION:write]\n/tmp/poem.txt|roses are red\nviolets are blue\n\nthe end"
	res := Parse(text)

	if len(res.Directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(res.Directives))
	}
	d := res.Directives[0]
	if d.Action != "write" {
		t.Errorf("action wrong: %q", d.Action)
	}
	if d.RawArgument != "/tmp/poem.txt|roses are red\nviolets are blue" {
		t.Errorf("body wrong: %q", d.RawArgument)
	}
	if strings.Contains(res.Cleaned, "[ACTION:") || strings.Contains(res.Cleaned, "roses") {
		t.Errorf("cleaned retains directive content: %q", res.Cleaned)
	}
}

func TestParse_BlockIgnoredWhenInlinePresent(t *testing.T) {
	text := "[ACTION:run|uptime]\n[ACTION:write]\n/tmp/x|y\n"
	res := Parse(text)
	if len(res.Directives) != 1 {
		t.Fatalf("expected only the inline directive, got %d", len(res.Directives))
	}
	if res.Directives[0].Action != "run" {
		t.Errorf("expected inline run, got %q", res.Directives[0].Action)
	}
}

func TestParse_MoodToken(t *testing.T) {
	res := Parse("feeling good [MOOD:happy] [ACTION:run|uptime]")
	if res.Mood != "happy" {
		t.Errorf("mood wrong: %q", res.Mood)
	}
	if strings.Contains(res.Cleaned, "[MOOD:") {
		t.Errorf("cleaned retains mood tag: %q", res.Cleaned)
	}
	if len(res.Directives) != 1 {
		t.Errorf("mood extraction disturbed directives: %+v", res.Directives)
	}
}

func TestParse_ReasoningStripped(t *testing.T) {
	text := "<think>I should run [ACTION:run|rm -rf /] here</think>all clear [ACTION:run|uptime]"
	res := Parse(text)

	if len(res.Directives) != 1 {
		t.Fatalf("expected 1 directive, got %d: %+v", len(res.Directives), res.Directives)
	}
	if res.Directives[0].RawArgument != "uptime" {
		t.Errorf("directive from reasoning leaked: %+v", res.Directives[0])
	}
	if !strings.HasPrefix(res.Cleaned, "all clear") {
		t.Errorf("cleaned wrong: %q", res.Cleaned)
	}
}

func TestParse_UnterminatedReasoning(t *testing.T) {
	res := Parse("<think>still thinking [ACTION:run|uptime]")
	if len(res.Directives) != 0 {
		t.Errorf("unterminated reasoning emitted directives: %+v", res.Directives)
	}
	if res.Cleaned != "" {
		t.Errorf("cleaned should be empty, got %q", res.Cleaned)
	}
}

func TestParse_PreambleWithoutOpenMarker(t *testing.T) {
	res := Parse("hmm, considering options</think>done [ACTION:run|uptime]")
	if len(res.Directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(res.Directives))
	}
	if !strings.HasPrefix(res.Cleaned, "done") {
		t.Errorf("cleaned wrong: %q", res.Cleaned)
	}
}

func TestParse_NoDirectives(t *testing.T) {
	res := Parse("just a friendly reply, nothing to do")
	if len(res.Directives) != 0 || res.Mood != "" {
		t.Errorf("unexpected parse output: %+v", res)
	}
	if res.Cleaned != "just a friendly reply, nothing to do" {
		t.Errorf("cleaned altered plain text: %q", res.Cleaned)
	}
}

func TestSplitArgument(t *testing.T) {
	tests := []struct {
		arg     string
		target  string
		content string
	}{
		{"/tmp/a.txt|hello", "/tmp/a.txt", "hello"},
		{"/tmp/a.txt|a|b|c", "/tmp/a.txt", "a|b|c"},
		{"/tmp/a.txt", "/tmp/a.txt", ""},
		{" /tmp/a.txt |x", "/tmp/a.txt", "x"},
	}
	for i, tt := range tests {
		target, content := SplitArgument(tt.arg)
		if target != tt.target || content != tt.content {
			t.Errorf("tests[%d] - got (%q, %q), expected (%q, %q)", i, target, content, tt.target, tt.content)
		}
	}
}

func TestUnescapeContent(t *testing.T) {
	if got := UnescapeContent(`line1\nline2`); got != "line1\nline2" {
		t.Errorf("unescape wrong: %q", got)
	}
}
