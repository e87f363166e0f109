package auth

import (
	"fmt"
	"strings"
)

// Faculty is an allow-listed faculty member.
type Faculty struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AllowList is the fixed set of faculty accounts permitted into faculty views.
// Matching is case-insensitive on email.
type AllowList struct {
	byEmail map[string]Faculty
	order   []Faculty
}

// NewAllowList builds an allow-list from entries.
func NewAllowList(entries ...Faculty) AllowList {
	a := AllowList{byEmail: make(map[string]Faculty, len(entries))}
	for _, f := range entries {
		key := normalizeEmail(f.Email)
		if key == "" {
			continue
		}
		if _, dup := a.byEmail[key]; dup {
			continue
		}
		a.byEmail[key] = f
		a.order = append(a.order, f)
	}
	return a
}

// ParseAllowList reads a comma separated list of "Name <email>" entries.
// A bare email is accepted and gets an empty name.
func ParseAllowList(s string) (AllowList, error) {
	var entries []Faculty
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		open := strings.LastIndex(raw, "<")
		if open < 0 {
			if !strings.Contains(raw, "@") {
				return AllowList{}, fmt.Errorf("allow-list entry %q: missing email", raw)
			}
			entries = append(entries, Faculty{Email: raw})
			continue
		}
		end := strings.LastIndex(raw, ">")
		if end < open {
			return AllowList{}, fmt.Errorf("allow-list entry %q: unterminated <email>", raw)
		}
		email := strings.TrimSpace(raw[open+1 : end])
		if !strings.Contains(email, "@") {
			return AllowList{}, fmt.Errorf("allow-list entry %q: invalid email", raw)
		}
		entries = append(entries, Faculty{Name: strings.TrimSpace(raw[:open]), Email: email})
	}
	return NewAllowList(entries...), nil
}

// Lookup finds the faculty member for email.
func (a AllowList) Lookup(email string) (Faculty, bool) {
	f, ok := a.byEmail[normalizeEmail(email)]
	return f, ok
}

// Members returns entries in configuration order.
func (a AllowList) Members() []Faculty {
	out := make([]Faculty, len(a.order))
	copy(out, a.order)
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
