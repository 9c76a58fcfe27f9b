package util

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeRecipients validates each address, lowercases it, expands
// comma/semicolon lists and drops duplicates while keeping input order.
// Separators inside a quoted display name ("Silva, Ana" <ana@x.com>) are
// part of the name.
func NormalizeRecipients(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		parts := splitAddressList(r)
		if len(parts) == 0 {
			continue
		}
		addrs, err := mail.ParseAddressList(strings.Join(parts, ", "))
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", r, err)
		}
		for _, addr := range addrs {
			a := strings.ToLower(addr.Address)
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

// splitAddressList splits on ',' and ';' outside double quotes and drops
// blank entries.
func splitAddressList(s string) []string {
	var (
		parts   []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			parts = append(parts, p)
		}
		cur.Reset()
	}
	for _, c := range s {
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case !quoted && (c == ',' || c == ';'):
			flush()
			continue
		}
		cur.WriteRune(c)
	}
	flush()
	return parts
}
