// Package version compares bridge versions, records which version last ran
// from a home directory, and looks up the latest published release.
package version

import (
	"strconv"
	"strings"
)

// devBuild reports whether v is an unstamped build: empty, "dev", or a
// bare commit hash.
func devBuild(v string) bool {
	return v == "" || v == "dev" || isCommitHash(v)
}

// CompareVersions returns 1 when a is newer than b, -1 when older and 0 when
// they share a release number. Dev builds sort before every release.
func CompareVersions(a, b string) int {
	a, b = strings.TrimPrefix(a, "v"), strings.TrimPrefix(b, "v")
	aDev, bDev := devBuild(a), devBuild(b)
	switch {
	case aDev && bDev:
		return 0
	case aDev:
		return -1
	case bDev:
		return 1
	}

	pa, pb := releaseParts(a), releaseParts(b)
	for i := range pa {
		switch {
		case pa[i] > pb[i]:
			return 1
		case pa[i] < pb[i]:
			return -1
		}
	}
	return 0
}

// IsNewerVersion reports whether latest is a newer release than current.
func IsNewerVersion(current, latest string) bool {
	return CompareVersions(latest, current) > 0
}

// NormalizeVersion strips whitespace, leading "v" and any pre-release or
// build suffix, so "v1.2.3-rc1" becomes "1.2.3".
func NormalizeVersion(v string) string {
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	return strings.TrimLeft(strings.TrimSpace(v), "v")
}

// releaseParts returns major, minor and patch; missing parts are zero.
func releaseParts(v string) [3]int {
	var parts [3]int
	for i, field := range strings.SplitN(NormalizeVersion(v), ".", 3) {
		n, err := strconv.Atoi(field)
		if err != nil {
			break
		}
		parts[i] = n
	}
	return parts
}

// isCommitHash matches 7 to 40 hex characters with at least one letter, so
// date-style numbers like 2024010100 still parse as versions.
func isCommitHash(s string) bool {
	s = strings.TrimSuffix(s, "-dirty")
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	letter := false
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'f':
			letter = true
		case c < '0' || c > '9':
			return false
		}
	}
	return letter
}
