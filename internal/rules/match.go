package rules

import (
	"strings"

	"github.com/gobwas/glob"
)

// CompilePattern converts an address pattern into a matcher. Only the first
// '*' acts as a wildcard; every other character, later '*' included, matches
// itself. Matching covers the whole address and is case-sensitive.
//
// TODO: decide whether later '*' should also be wildcards once deployed
// pattern lists have been audited; changing it alters which addresses match.
func CompilePattern(pattern string) (glob.Glob, error) {
	head, tail, found := strings.Cut(pattern, "*")
	expr := glob.QuoteMeta(head)
	if found {
		expr += "*" + glob.QuoteMeta(tail)
	}
	return glob.Compile(expr)
}

// Matches reports whether address matches pattern. A pattern that fails to
// compile never matches.
func Matches(pattern, address string) bool {
	g, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	return g.Match(address)
}

// IsAddressPattern reports whether a configuration key names an address
// pattern rather than a fixed option.
func IsAddressPattern(key string) bool {
	return strings.HasPrefix(key, "http")
}
