// Package directive extracts action tags from model-generated text.
// The grammar supports an inline form [ACTION:name|argument], a block
// form where [ACTION:name] stands alone and the following lines up to
// a blank line form the argument, and a mood tag [MOOD:token].
package directive

import (
	"regexp"
	"strings"
)

// Directive is one parsed instruction. Ephemeral: created per parse
// pass and discarded after execution.
type Directive struct {
	Action      string
	RawArgument string
}

// Result carries directives in source order, the input with all
// matched tag spans removed, and the optional mood token.
type Result struct {
	Directives []Directive
	Cleaned    string
	Mood       string
}

var (
	inlineRe = regexp.MustCompile(`\[ACTION:([A-Za-z][A-Za-z0-9_]*)\|([^\]]*)\]`)
	blockRe  = regexp.MustCompile(`^\[ACTION:([A-Za-z][A-Za-z0-9_]*)\]$`)
	moodRe   = regexp.MustCompile(`\[MOOD:([A-Za-z][A-Za-z0-9_]*)\]`)

	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

// Parse splits raw model output into directives, cleaned text and a
// mood token. Reasoning markup is stripped first and never treated as
// directive source. Directives are deduplicated by (action, trimmed
// argument); block-form tags are only considered when no inline tag
// matched, to avoid double dispatch.
func Parse(text string) Result {
	text = stripReasoning(text)

	directives, cleaned := parseInline(text)
	if len(directives) == 0 {
		directives, cleaned = parseBlocks(text)
	}

	mood := ""
	if m := moodRe.FindStringSubmatch(cleaned); m != nil {
		mood = m[1]
	}
	cleaned = moodRe.ReplaceAllString(cleaned, "")

	return Result{
		Directives: dedupe(directives),
		Cleaned:    strings.TrimSpace(cleaned),
		Mood:       mood,
	}
}

// stripReasoning removes reasoning spans. A close marker with no
// preceding open marker ends an unterminated preamble; an open marker
// with no close means the whole text is reasoning.
func stripReasoning(text string) string {
	// Unterminated preamble: the text begins mid-reasoning.
	if idx := strings.Index(text, reasoningClose); idx >= 0 {
		open := strings.Index(text, reasoningOpen)
		if open == -1 || open > idx {
			text = text[idx+len(reasoningClose):]
		}
	}

	for {
		open := strings.Index(text, reasoningOpen)
		if open == -1 {
			return text
		}
		end := strings.Index(text[open:], reasoningClose)
		if end == -1 {
			// Never closed; the whole text is reasoning.
			return ""
		}
		text = text[:open] + text[open+end+len(reasoningClose):]
	}
}

func parseInline(text string) ([]Directive, string) {
	matches := inlineRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, text
	}
	directives := make([]Directive, 0, len(matches))
	for _, m := range matches {
		directives = append(directives, Directive{Action: m[1], RawArgument: m[2]})
	}
	return directives, inlineRe.ReplaceAllString(text, "")
}

// parseBlocks scans line-wise for a bare [ACTION:name] tag and
// collects the following lines until a blank line or the next tag.
func parseBlocks(text string) ([]Directive, string) {
	lines := strings.Split(text, "\n")
	var directives []Directive
	var kept []string

	for i := 0; i < len(lines); i++ {
		m := blockRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			kept = append(kept, lines[i])
			continue
		}
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			line := lines[j]
			if strings.TrimSpace(line) == "" || isTagLine(line) {
				break
			}
			body = append(body, line)
		}
		directives = append(directives, Directive{
			Action:      m[1],
			RawArgument: strings.Join(body, "\n"),
		})
		i = j - 1
	}

	if len(directives) == 0 {
		return nil, text
	}
	return directives, strings.Join(kept, "\n")
}

func isTagLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return blockRe.MatchString(trimmed) ||
		inlineRe.MatchString(trimmed) ||
		moodRe.MatchString(trimmed)
}

// dedupe keeps the first occurrence of each (action, trimmed
// argument) pair so a repeated tag executes at most once.
func dedupe(directives []Directive) []Directive {
	if len(directives) < 2 {
		return directives
	}
	seen := make(map[string]bool, len(directives))
	out := directives[:0]
	for _, d := range directives {
		key := d.Action + "\x00" + strings.TrimSpace(d.RawArgument)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// SplitArgument splits a write/append argument into target and
// content on the first separator only, so content may itself contain
// the separator character.
func SplitArgument(arg string) (target, content string) {
	if idx := strings.Index(arg, "|"); idx >= 0 {
		return strings.TrimSpace(arg[:idx]), arg[idx+1:]
	}
	return strings.TrimSpace(arg), ""
}

// UnescapeContent replaces the literal two-character newline escape
// with a real newline before content is written.
func UnescapeContent(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
