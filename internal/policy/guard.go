package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard evaluates directive arguments against a compiled rule set.
// All methods are pure: no I/O beyond path resolution, no state.
type Guard struct {
	rules *Rules
}

// NewGuard builds a guard over the given rules. A nil rules argument
// selects the built-in tables.
func NewGuard(rules *Rules) *Guard {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Guard{rules: rules}
}

// Evaluate checks a conversational directive before dispatch. The
// destructive table is consulted first for every action class and is
// never overridden by the diagnostic exception list; operator extra
// patterns apply to every action class as well.
func (g *Guard) Evaluate(action, arg string) Verdict {
	if ru, ok := matchRules(g.rules.destructive, arg); ok {
		return Deny(ru.kind, ru.reason)
	}
	if ru, ok := matchRules(g.rules.extra, arg); ok {
		return Deny(ru.kind, ru.reason)
	}

	switch action {
	case "run":
		return g.evaluateCommand(arg)
	case "write", "append":
		return g.evaluateWriteTarget(arg)
	}
	return Allow()
}

func (g *Guard) evaluateCommand(command string) Verdict {
	trimmed := strings.TrimSpace(command)
	for _, allowed := range g.rules.diagnostics {
		if trimmed == allowed {
			return Allow()
		}
		// The exception covers one diagnostic invocation. Whatever
		// follows its arguments still goes through the injection
		// table, so nothing can be chained behind the allowed prefix.
		if strings.HasPrefix(trimmed, allowed+" ") {
			rest := trimmed[len(allowed):]
			if ru, ok := matchRules(g.rules.shellInjection, rest); ok {
				return Deny(ru.kind, ru.reason)
			}
			return Allow()
		}
	}
	if ru, ok := matchRules(g.rules.shellInjection, command); ok {
		return Deny(ru.kind, ru.reason)
	}
	return Allow()
}

// evaluateWriteTarget resolves the target portion of a write/append
// argument to canonical absolute form and rejects protected locations.
// The argument carries "target|content"; only the first separator
// splits, so file content may contain '|'.
func (g *Guard) evaluateWriteTarget(arg string) Verdict {
	target := arg
	if idx := strings.Index(arg, "|"); idx >= 0 {
		target = arg[:idx]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return Deny(KindPathTraversal, "empty write target")
	}
	return g.CheckPath(target)
}

// CheckDestructive applies only the destructive table. Used when a
// session has safety checks toggled off: the destructive patterns are
// fatal no matter what.
func (g *Guard) CheckDestructive(arg string) Verdict {
	if ru, ok := matchRules(g.rules.destructive, arg); ok {
		return Deny(ru.kind, ru.reason)
	}
	return Allow()
}

// CheckPath canonicalizes a filesystem path and denies it when it
// resolves under a protected prefix or credential-bearing location.
func (g *Guard) CheckPath(path string) Verdict {
	resolved := expandHome(path)
	if !filepath.IsAbs(resolved) {
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return Deny(KindPathTraversal, fmt.Sprintf("unresolvable path %q", path))
		}
		resolved = abs
	}
	resolved = filepath.Clean(resolved)

	for _, prefix := range g.rules.pathPrefixes {
		if strings.HasPrefix(resolved, prefix) || resolved == strings.TrimSuffix(prefix, "/") {
			return Deny(KindPathTraversal, fmt.Sprintf("protected location %s", prefix))
		}
	}
	for _, frag := range g.rules.pathFragments {
		if strings.Contains(resolved, frag) || strings.HasSuffix(resolved, strings.TrimSuffix(frag, "/")) {
			return Deny(KindPathTraversal, fmt.Sprintf("credential-bearing location %s", strings.Trim(frag, "/")))
		}
	}
	return Allow()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
