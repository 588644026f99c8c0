package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// exactMatchBelow is the recovered-name length under which a branch
// must match exactly. Environment names are truncated by CI, so longer
// names only need to be a prefix of the branch.
const exactMatchBelow = 11

// RecoverBranch strips the first match of the delete pattern from an
// environment id, leaving the branch-derived part of the name.
func RecoverBranch(re *regexp.Regexp, id string) string {
	loc := re.FindStringIndex(id)
	if loc == nil {
		return id
	}
	return id[:loc[0]] + id[loc[1]:]
}

// MatchesBranch reports whether a recovered name refers to any of
// branches. Comparison is case-insensitive and literal.
func MatchesBranch(recovered string, branches []string) bool {
	_, ok := matchingBranch(recovered, branches)
	return ok
}

func matchingBranch(recovered string, branches []string) (string, bool) {
	if recovered == "" {
		return "", false
	}
	name := strings.ToLower(recovered)
	exact := utf8.RuneCountInString(recovered) < exactMatchBelow

	for _, branch := range branches {
		candidate := strings.ToLower(branch)
		if exact && candidate == name {
			return branch, true
		}
		if !exact && strings.HasPrefix(candidate, name) {
			return branch, true
		}
	}
	return "", false
}
