// Package uri recognizes and parses cryptocurrency payment URIs.
package uri

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// WebPrefix is the prefix of registered protocol handler schemes.
const WebPrefix = "web+"

// Recognized schemes.
const (
	SchemeBitcoin     = "bitcoin"
	SchemeBitcoinCash = "bitcoincash"
	SchemeBitcoinSV   = "bitcoinsv"
	SchemeEthereum    = "ethereum"
	SchemeLitecoin    = "litecoin"
	SchemeDogecoin    = "dogecoin"
	SchemeMonero      = "monero"
	SchemeStellar     = "stellar"
	SchemeRipple      = "ripple"
	SchemeCardano     = "cardano"
	SchemeEOS         = "eos"
	SchemeDash        = "dash"
)

// maxSuggestionDistance bounds how far a typo may be from a known scheme.
const maxSuggestionDistance = 2

// Schemes is an immutable set of recognized base schemes.
type Schemes struct {
	set map[string]struct{}
}

// DefaultSchemes returns the built-in cryptocurrency schemes.
func DefaultSchemes() *Schemes {
	return NewSchemes(
		SchemeBitcoin, SchemeBitcoinCash, SchemeBitcoinSV, SchemeEthereum,
		SchemeLitecoin, SchemeDogecoin, SchemeMonero, SchemeStellar,
		SchemeRipple, SchemeCardano, SchemeEOS, SchemeDash,
	)
}

// NewSchemes builds a scheme set. Names are lowercased and a leading "web+"
// or trailing ":" is stripped.
func NewSchemes(names ...string) *Schemes {
	s := &Schemes{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = canonical(n); n != "" {
			s.set[n] = struct{}{}
		}
	}
	return s
}

// With returns a new set containing s plus extra.
func (s *Schemes) With(extra ...string) *Schemes {
	return NewSchemes(append(s.Names(), extra...)...)
}

// Names returns the base schemes in sorted order.
func (s *Schemes) Names() []string {
	out := make([]string, 0, len(s.set))
	for n := range s.set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether name, with or without "web+", is recognized.
func (s *Schemes) Contains(name string) bool {
	_, ok := s.set[canonical(name)]
	return ok
}

// Match reports whether href uses a recognized scheme, either exactly
// ("bitcoin:...") or through the web+ family ("web+bitcoin:..."). It returns
// the base scheme.
func (s *Schemes) Match(href string) (string, bool) {
	scheme, ok := SchemeOf(href)
	if !ok {
		return "", false
	}
	base := strings.TrimPrefix(scheme, WebPrefix)
	if _, ok := s.set[base]; !ok {
		return "", false
	}
	return base, true
}

// Suggest returns the closest known scheme to name, or "" when nothing is
// close enough.
func (s *Schemes) Suggest(name string) string {
	name = canonical(name)
	best, bestDist := "", maxSuggestionDistance+1
	for _, n := range s.Names() {
		if d := levenshtein.ComputeDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// SchemeOf extracts the lowercase scheme of href. It follows RFC 3986: a
// letter followed by letters, digits, "+", "-" or ".".
func SchemeOf(href string) (string, bool) {
	href = strings.TrimSpace(href)
	i := strings.IndexByte(href, ':')
	if i <= 0 {
		return "", false
	}
	scheme := strings.ToLower(href[:i])
	for j, c := range scheme {
		switch {
		case c >= 'a' && c <= 'z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", false
		}
	}
	return scheme, true
}

func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ":")
	return strings.TrimPrefix(name, WebPrefix)
}
