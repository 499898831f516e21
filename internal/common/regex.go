package common

import (
	"regexp"
	"strings"
)

// CompileInsensitive compiles pattern with case-insensitive matching unless the
// pattern already carries its own flags.
func CompileInsensitive(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}
