package store

import "strings"

// escapeLike escapes the three characters SQL's LIKE/ILIKE treats
// specially — '\', '%' and '_' — so a literal directory path can be
// used as a LIKE operand without its own characters acting as
// wildcards.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// subtreeLikePattern builds the LIKE pattern matching dirPrefix itself
// is handled by a separate "=" clause; this pattern matches only rows
// strictly below dirPrefix (dirPrefix + "/" + anything).
func subtreeLikePattern(dirPrefix string) string {
	return escapeLike(dirPrefix) + `/%`
}
