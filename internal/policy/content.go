package policy

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is a well-formed action or site
// identifier.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// CheckContent scans an arbitrary string for injection, traversal and
// exfiltration signatures. Strings that look like URLs additionally
// go through CheckURL.
func (g *Guard) CheckContent(s string) Verdict {
	if ru, ok := matchRules(g.rules.destructive, s); ok {
		return Deny(ru.kind, ru.reason)
	}
	if ru, ok := matchRules(g.rules.content, s); ok {
		return Deny(ru.kind, ru.reason)
	}
	// Scheme matching is case-insensitive: url.Parse lowercases the
	// scheme, so "HTTP://..." would otherwise reach a fetch handler
	// without ever passing the address table.
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return g.CheckURL(trimmed)
	}
	return Allow()
}

// CheckURL rejects URLs that point at loopback, private or link-local
// address space, at known metadata endpoints, or that use a scheme
// other than http or https.
func (g *Guard) CheckURL(raw string) Verdict {
	u, err := url.Parse(raw)
	if err != nil {
		return Deny(KindExfiltration, fmt.Sprintf("unparseable URL %q", raw))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Deny(KindExfiltration, fmt.Sprintf("disallowed URL scheme %q", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Deny(KindExfiltration, "URL without host")
	}
	if reason, ok := blockedHosts[host]; ok {
		return Deny(KindExfiltration, reason)
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return Deny(KindExfiltration, fmt.Sprintf("internal hostname %s", host))
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return Deny(KindExfiltration, "loopback address")
		case ip.IsPrivate():
			return Deny(KindExfiltration, "private address range")
		case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
			return Deny(KindExfiltration, "link-local address")
		case ip.IsUnspecified():
			return Deny(KindExfiltration, "unspecified address")
		}
	}
	return Allow()
}

// CheckValue walks a parameter value recursively and applies
// CheckContent to every string it contains. Maps and slices from
// decoded JSON or YAML are traversed; scalar non-strings pass.
func (g *Guard) CheckValue(v interface{}) Verdict {
	switch val := v.(type) {
	case string:
		return g.CheckContent(val)
	case []interface{}:
		for _, item := range val {
			if verdict := g.CheckValue(item); !verdict.Allowed {
				return verdict
			}
		}
	case map[string]interface{}:
		for _, item := range val {
			if verdict := g.CheckValue(item); !verdict.Allowed {
				return verdict
			}
		}
	}
	return Allow()
}

// CheckParams applies CheckValue to every entry of a task parameter
// map and names the offending parameter in the denial reason.
func (g *Guard) CheckParams(params map[string]interface{}) Verdict {
	for name, value := range params {
		if verdict := g.CheckValue(value); !verdict.Allowed {
			verdict.Reason = fmt.Sprintf("parameter %q: %s", name, verdict.Reason)
			return verdict
		}
	}
	return Allow()
}
