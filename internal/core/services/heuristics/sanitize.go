package heuristics

import (
	"regexp"
	"sort"
	"strings"
)

var (
	nonAlnumExpr  = regexp.MustCompile(`[^a-z0-9]+`)
	versionExpr   = regexp.MustCompile(`\bv?\d+(?:\.\d+)+\b`)
	vendorSplitRe = regexp.MustCompile(`[,;/]`)
)

// sanitize lowercases, strips trademark symbols and replaces every
// non-alphanumeric run with a single space.
func sanitize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("®", "", "™", "").Replace(s) // ® ™
	s = nonAlnumExpr.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// squash is sanitize with the spaces removed, the shape CPE vendor strings
// take ("Red Hat, Inc." -> "redhatinc").
func squash(s string) string {
	return strings.ReplaceAll(sanitize(s), " ", "")
}

// tokens returns the set of sanitized tokens of s.
func tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(sanitize(s)) {
		out[t] = struct{}{}
	}
	return out
}

// tokenSetSimilarity scores two strings on 0..1 by token-set overlap.
// A full subset relation scores 1.0, mirroring how token-set ratios treat
// one name embedded in a longer title.
func tokenSetSimilarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	if inter == len(ta) || inter == len(tb) {
		return 1.0
	}
	return 2 * float64(inter) / float64(len(ta)+len(tb))
}

// stripTokens removes the given fragments' tokens from s, used to compare a
// product name against a CPE item name with the vendor and version peeled
// off.
func stripTokens(s string, fragments []string) string {
	drop := make(map[string]struct{})
	for _, f := range fragments {
		for t := range tokens(f) {
			drop[t] = struct{}{}
		}
	}
	var kept []string
	for _, t := range strings.Fields(sanitize(s)) {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// extractVersions pulls version-looking tokens out of a product name.
func extractVersions(s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, v := range versionExpr.FindAllString(strings.ToLower(s), -1) {
		v = strings.TrimPrefix(v, "v")
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// vendorParts splits a free-text vendor string on separators, so joint
// vendors ("Thales / Gemalto") yield candidates for each party.
func vendorParts(vendor string) []string {
	var parts []string
	for _, p := range vendorSplitRe.Split(vendor, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// sortedKeys returns map keys in sorted order so iteration stays
// deterministic.
func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
