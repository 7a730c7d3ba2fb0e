package ads

import "strings"

// OptString returns a pointer to the trimmed value, or nil when it is blank.
func OptString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptFloat returns a pointer to v.
func OptFloat(v float64) *float64 {
	return &v
}

// OptInt64 returns a pointer to v.
func OptInt64(v int64) *int64 {
	return &v
}
