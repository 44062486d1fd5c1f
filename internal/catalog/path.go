package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// ParentPath returns the part of path before its last "/".
// Root categories ("/electronics") and paths without a "/" have no parent
// and yield "".
func ParentPath(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// JoinPath appends a single segment to a parent path. An empty parent
// produces a root path.
func JoinPath(parent, segment string) string {
	return parent + "/" + segment
}

// EscapeForPattern escapes every regular expression metacharacter in path
// so it can be embedded in a pattern as a literal.
func EscapeForPattern(path string) string {
	return regexp.QuoteMeta(path)
}

// DescendantPattern matches base itself and anything nested under it.
func DescendantPattern(base string) *regexp.Regexp {
	return regexp.MustCompile("^" + EscapeForPattern(base) + "(/|$)")
}

// IsDescendantOrSelf reports whether candidate is base or lies under it.
// "/a/bc" is not under "/a/b".
func IsDescendantOrSelf(candidate, base string) bool {
	return candidate == base || strings.HasPrefix(candidate, base+"/")
}

// RewritePrefix moves path from under oldPrefix to under newPrefix.
// Paths outside oldPrefix are returned unchanged.
func RewritePrefix(path, oldPrefix, newPrefix string) string {
	if !IsDescendantOrSelf(path, oldPrefix) {
		return path
	}
	return newPrefix + path[len(oldPrefix):]
}

// ValidatePath checks that path is a well-formed materialized path:
// it starts with "/", has no empty segments and no trailing "/".
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with /: %q", path)
	}
	for _, seg := range strings.Split(path[1:], "/") {
		if seg == "" {
			return fmt.Errorf("path has an empty segment: %q", path)
		}
	}
	return nil
}
