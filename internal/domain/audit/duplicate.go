package audit

import "strings"

// IsDuplicate reports whether productName matches any library entry, case-insensitively,
// when either name contains the other. Blank names never match.
func IsDuplicate(productName string, library []*Complainee) bool {
	p := strings.ToLower(strings.TrimSpace(productName))
	if p == "" {
		return false
	}
	for _, c := range library {
		if c == nil {
			continue
		}
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			continue
		}
		if strings.Contains(p, n) || strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// HasName reports an exact case-insensitive name clash, used to keep the library unique.
func HasName(library []*Complainee, name string) bool {
	name = strings.TrimSpace(name)
	for _, c := range library {
		if c != nil && strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return true
		}
	}
	return false
}
