// Package origin implements the broker's origin allowlist.
//
// Patterns are exact origins (https://wallet.example.com), wildcarded
// subdomains (https://*.example.com), wildcard ports (http://localhost:*),
// brace alternatives (https://{app,beta}.example.com) or the single pattern
// "*" which allows every origin. Matching uses doublestar semantics where "*"
// never crosses a "/", so a wildcard cannot escape the host part.
package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned by this package.
var (
	ErrInvalidPattern = errors.New("origin: invalid pattern")
	ErrInvalidOrigin  = errors.New("origin: invalid origin")
)

// Wildcard allows every origin.
const Wildcard = "*"

// ValidatePattern reports whether p is a usable allowlist pattern.
func ValidatePattern(p string) error {
	if p == Wildcard {
		return nil
	}
	if strings.Contains(p, "**") {
		return fmt.Errorf("%w: %q: ** is not allowed", ErrInvalidPattern, p)
	}
	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
	}

	scheme, rest, ok := strings.Cut(p, "://")
	if !ok || scheme == "" || rest == "" {
		return fmt.Errorf("%w: %q: expected scheme://host", ErrInvalidPattern, p)
	}
	if strings.ContainsAny(scheme, "*?[{") {
		return fmt.Errorf("%w: %q: scheme must be literal", ErrInvalidPattern, p)
	}
	if strings.ContainsAny(rest, "/?#") {
		return fmt.Errorf("%w: %q: origins have no path", ErrInvalidPattern, p)
	}
	return nil
}

// Normalize reduces a URL or origin to its lowercase scheme://host[:port].
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
	}
	if u.Scheme == "" || u.Host == "" || u.User != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// Allowlist is an immutable set of origin patterns plus the wallet origin,
// which is always allowed.
type Allowlist struct {
	walletOrigin string
	patterns     []string
	allowAll     bool
}

// New builds an allowlist. walletURL may be a full URL.
func New(walletURL string, patterns []string) (*Allowlist, error) {
	wallet, err := Normalize(walletURL)
	if err != nil {
		return nil, err
	}

	a := &Allowlist{
		walletOrigin: wallet,
		patterns:     make([]string, 0, len(patterns)),
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if err := ValidatePattern(p); err != nil {
			return nil, err
		}
		if p == Wildcard {
			a.allowAll = true
		}
		a.patterns = append(a.patterns, p)
	}
	return a, nil
}

// Allowed reports whether origin may use wallet operations.
func (a *Allowlist) Allowed(origin string) bool {
	o, err := Normalize(origin)
	if err != nil {
		return false
	}
	if a.allowAll || o == a.walletOrigin {
		return true
	}
	for _, p := range a.patterns {
		if ok, _ := doublestar.Match(p, o); ok {
			return true
		}
	}
	return false
}

// IsWallet reports whether origin is the wallet surface.
func (a *Allowlist) IsWallet(origin string) bool {
	o, err := Normalize(origin)
	return err == nil && o == a.walletOrigin
}

// WalletOrigin returns the normalized wallet origin.
func (a *Allowlist) WalletOrigin() string {
	return a.walletOrigin
}

// Patterns returns a copy of the configured patterns.
func (a *Allowlist) Patterns() []string {
	out := make([]string, len(a.patterns))
	copy(out, a.patterns)
	return out
}
