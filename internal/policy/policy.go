// Package policy enforces the --enable-commands allowlist.
package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

// CheckCommandAllowed returns CodeBlocked when an allowlist is set and the
// command path is not on it. The root name is ignored so "tokenintel token
// analyze" and "token analyze" match. An entry naming a command group
// ("token") allows every command under it.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if covers(normalize(allowed), normPath) {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("command %q blocked by --enable-commands policy", normPath))
}

func covers(entry, path string) bool {
	if entry == "" {
		return false
	}
	return entry == path || strings.HasPrefix(path, entry+" ")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	if len(parts) > 0 && parts[0] == "tokenintel" {
		parts = parts[1:]
	}
	return strings.Join(parts, " ")
}
