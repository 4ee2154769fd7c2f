// Package sandbox executes scheduled heartbeat tasks inside an
// isolation boundary. Each run gets one Context scoping credentials
// and request quota to a single site; policy breaches surface as a
// Violation, a distinct type from ordinary handler failures.
package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/companion/internal/credentials"
	"github.com/vinayprograms/companion/internal/policy"
)

// Violation is a security-relevant rejection. Callers distinguish it
// from handler failures because the two have different operational
// responses: log-and-continue versus log-and-alert.
type Violation struct {
	Kind   policy.ViolationKind
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sandbox violation (%s): %s", v.Kind, v.Reason)
}

// AsViolation unwraps err into a Violation if it is one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// ErrNoHandler marks a missing action registration. It is an ordinary
// failure, never a Violation, so a missing feature cannot mask or be
// masked by a genuine policy denial.
var ErrNoHandler = errors.New("no handler registered")

// Context is the per-run mutable state for one heartbeat invocation.
// Owned exclusively by that invocation and never shared across sites
// or runs. The allowed key name is copied by value from the site
// config, so key isolation survives config reloads mid-run.
type Context struct {
	SiteID         string
	AllowedAPIKey  string
	MaxRequests    uint32
	RequestCount   uint32
	TimeoutSeconds uint32

	creds *credentials.Store
}

// NewContext builds a fresh context for one site run.
func NewContext(siteID, allowedKey string, maxRequests, timeoutSeconds uint32, creds *credentials.Store) *Context {
	return &Context{
		SiteID:         siteID,
		AllowedAPIKey:  allowedKey,
		MaxRequests:    maxRequests,
		TimeoutSeconds: timeoutSeconds,
		creds:          creds,
	}
}

// GetAPIKey resolves the one key this site is entitled to. Any other
// name raises a key-isolation violation naming both the requested and
// the permitted key; the store is never consulted for a mismatched
// name, even if it holds the key.
func (c *Context) GetAPIKey(name string) (string, error) {
	if c.AllowedAPIKey == "" || name != c.AllowedAPIKey {
		return "", &Violation{
			Kind:   policy.KindKeyIsolation,
			Reason: fmt.Sprintf("site %q requested key %q but is permitted %q", c.SiteID, name, c.AllowedAPIKey),
		}
	}
	value, ok := c.creds.Get(name)
	if !ok {
		return "", fmt.Errorf("key %q not found in credential store", name)
	}
	return value, nil
}

// Timeout returns the wall-clock limit for this run.
func (c *Context) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
