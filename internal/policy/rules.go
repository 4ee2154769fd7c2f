// Package policy holds the static pattern tables and the pure guard
// functions that decide whether untrusted input may become a side
// effect. Evaluation performs no I/O and keeps no state, so every
// check is a pure function of its input.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// ViolationKind classifies why a verdict denied an input.
type ViolationKind string

const (
	KindNone           ViolationKind = "none"
	KindShellInjection ViolationKind = "shell_injection"
	KindPathTraversal  ViolationKind = "path_traversal"
	KindCodeInjection  ViolationKind = "code_injection"
	KindExfiltration   ViolationKind = "exfiltration"
	KindRateLimit      ViolationKind = "rate_limit"
	KindKeyIsolation   ViolationKind = "key_isolation"
)

// Verdict is the result of a single guard check. Produced fresh per
// check and never cached.
type Verdict struct {
	Allowed bool
	Reason  string
	Kind    ViolationKind
}

// Allow returns a passing verdict.
func Allow() Verdict {
	return Verdict{Allowed: true, Kind: KindNone}
}

// Deny returns a failing verdict with the matched kind and reason.
func Deny(kind ViolationKind, reason string) Verdict {
	return Verdict{Allowed: false, Kind: kind, Reason: reason}
}

type rule struct {
	re     *regexp.Regexp
	kind   ViolationKind
	reason string
}

// Destructive command idioms. These are fatal for every action class
// and are never overridden by the privileged-command exception list.
var destructiveRules = []rule{
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]+\s+)*-[a-z]*[rf][a-z]*\s+(-[a-z]+\s+)*/(\s|$|\*)`), KindShellInjection, "recursive delete of filesystem root"},
	{regexp.MustCompile(`(?i)\bdd\b[^|;]*\bof=/dev/(sd|hd|nvme|vd|xvd|mmcblk)`), KindShellInjection, "raw write to block device"},
	{regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\s+/dev/`), KindShellInjection, "filesystem format of block device"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd|xvd|mmcblk)`), KindShellInjection, "redirect onto block device"},
	{regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*-r\s+(777|a\+rwx)\s+/(\s|$)`), KindShellInjection, "permission flattening of filesystem root"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), KindShellInjection, "fork bomb"},
	{regexp.MustCompile(`(?i)\bshutdown\b|\breboot\b|\bhalt\s+-f\b|\binit\s+0\b`), KindShellInjection, "host power control"},
}

// Shell metacharacter, substitution and chaining idioms checked for
// run-class actions after the destructive table.
var shellInjectionRules = []rule{
	{regexp.MustCompile("`[^`]*`"), KindShellInjection, "backtick command substitution"},
	{regexp.MustCompile(`\$\([^)]*\)`), KindShellInjection, "command substitution"},
	{regexp.MustCompile(`;\s*\S`), KindShellInjection, "command chaining with ';'"},
	{regexp.MustCompile(`&&|\|\|`), KindShellInjection, "conditional command chaining"},
	{regexp.MustCompile(`\|\s*(sh|bash|zsh|dash|python[0-9.]*|perl|ruby|node)\b`), KindShellInjection, "pipe into interpreter"},
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*\S`), KindShellInjection, "piped download execution"},
	{regexp.MustCompile(`>>?\s*/etc/`), KindShellInjection, "redirect into system configuration"},
	{regexp.MustCompile(`\n`), KindShellInjection, "embedded newline in command"},
	{regexp.MustCompile(`(?i)\b(sudo|doas)\b`), KindShellInjection, "privilege escalation"},
}

// Read-only diagnostic invocations exempt from the privilege
// escalation pattern. Matched against the trimmed command prefix.
var privilegedDiagnostics = []string{
	"sudo dmesg",
	"sudo journalctl",
	"sudo lsof",
	"sudo ss",
	"sudo netstat",
	"sudo smartctl -a",
	"sudo smartctl -H",
}

// Filesystem prefixes that write and append actions may never touch.
var protectedPathPrefixes = []string{
	"/etc/",
	"/boot/",
	"/sys/",
	"/proc/",
	"/dev/",
	"/usr/bin/",
	"/usr/sbin/",
	"/usr/lib/",
	"/bin/",
	"/sbin/",
	"/lib/",
	"/var/spool/cron/",
	"/root/.ssh/",
}

// Home-relative fragments rejected anywhere inside a resolved path.
var protectedPathFragments = []string{
	"/.ssh/",
	"/.gnupg/",
	"/.aws/",
	"/.kube/",
	"/credentials.toml",
	"/authorized_keys",
	"/id_rsa",
	"/id_ed25519",
}

// Content rules applied to arbitrary string parameters of scheduled
// tasks and to config fields at load time. Task parameters are
// attacker-shaped configuration, so every string gets scanned, not
// just a designated command field.
var contentRules = []rule{
	{regexp.MustCompile(`\.\./`), KindPathTraversal, "relative path traversal"},
	{regexp.MustCompile("`[^`]*`"), KindCodeInjection, "backtick command substitution"},
	{regexp.MustCompile(`\$\([^)]*\)`), KindCodeInjection, "command substitution"},
	{regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`), KindCodeInjection, "dynamic code evaluation"},
	{regexp.MustCompile(`(?i)\bimport\s+os\b|\bos\.system\s*\(`), KindCodeInjection, "embedded interpreter escape"},
	{regexp.MustCompile(`(?i);\s*(rm|curl|wget|nc|ncat|chmod|chown)\b`), KindShellInjection, "chained shell command"},
	{regexp.MustCompile(`\|\s*(sh|bash|zsh|dash)\b`), KindShellInjection, "pipe into shell"},
	{regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf]`), KindShellInjection, "recursive delete fragment"},
	{regexp.MustCompile(`(?i)\b(curl|wget|fetch|post|send|upload|http\.?(get|post)?|requests?)\b[^\n]{0,60}\b(api[_-]?key|secret|token|passw(or)?d|credential)`), KindExfiltration, "network verb adjacent to credential reference"},
	{regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|passw(or)?d|credential)s?\b[^\n]{0,60}\b(curl|wget|fetch|upload|post|send)\b`), KindExfiltration, "credential reference adjacent to network verb"},
	{regexp.MustCompile(`(?i)/etc/(passwd|shadow|sudoers)`), KindExfiltration, "system credential file reference"},
}

// Hostnames never reachable by scheduled tasks regardless of
// resolution: loopback aliases and cloud metadata endpoints.
var blockedHosts = map[string]string{
	"localhost":                "loopback host",
	"metadata.google.internal": "cloud metadata endpoint",
	"metadata":                 "cloud metadata endpoint",
}

var blockedHostSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// Rules is a compiled, immutable pattern set. Construct one with
// DefaultRules and extend it with AddContentPatterns before handing
// it to a Guard.
type Rules struct {
	destructive    []rule
	shellInjection []rule
	content        []rule
	extra          []rule
	pathPrefixes   []string
	pathFragments  []string
	diagnostics    []string
}

// DefaultRules returns the built-in pattern tables.
func DefaultRules() *Rules {
	return &Rules{
		destructive:    destructiveRules,
		shellInjection: shellInjectionRules,
		content:        contentRules,
		pathPrefixes:   protectedPathPrefixes,
		pathFragments:  protectedPathFragments,
		diagnostics:    privilegedDiagnostics,
	}
}

// AddContentPatterns compiles operator-supplied expressions and
// appends them to both the content table and the directive extra
// table, so they apply to scheduled task parameters and conversational
// arguments alike. A pattern that fails to compile rejects the whole
// batch so a typo cannot silently weaken the set.
func (r *Rules) AddContentPatterns(exprs []string) error {
	compiled := make([]rule, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid extra pattern %q: %w", expr, err)
		}
		compiled = append(compiled, rule{re: re, kind: KindCodeInjection, reason: fmt.Sprintf("custom pattern %q", expr)})
	}
	r.content = append(r.content, compiled...)
	r.extra = append(r.extra, compiled...)
	return nil
}

// AddProtectedPrefixes appends operator-supplied path prefixes to the
// protected table. Prefixes are normalized to a trailing slash.
func (r *Rules) AddProtectedPrefixes(prefixes []string) {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		r.pathPrefixes = append(r.pathPrefixes, p)
	}
}

func matchRules(rules []rule, s string) (rule, bool) {
	for _, ru := range rules {
		if ru.re.MatchString(s) {
			return ru, true
		}
	}
	return rule{}, false
}
