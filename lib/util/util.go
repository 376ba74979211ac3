// Package util contains helper functions used around the code.
package util

import (
	"strings"
)

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// NormEmail trims and lowercases an email address so it can be used as a lookup key.
func NormEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
