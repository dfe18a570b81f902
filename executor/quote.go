package executor

import (
	"regexp"
	"strings"
)

var safeShellWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote returns s quoted for a POSIX shell. Words made only of safe
// characters are returned unchanged.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeShellWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// QuotePath quotes a path but keeps a leading "~/" outside the quotes so
// the remote shell still expands it.
func QuotePath(p string) string {
	if p == "~" {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		rest := p[2:]
		if rest == "" {
			return "~/"
		}
		return "~/" + Quote(rest)
	}
	return Quote(p)
}
