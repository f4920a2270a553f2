// Package utils holds small helpers with no domain knowledge, shared
// across layers.
package utils

import "strconv"

// AtoiDefault parses s as an int and falls back to def when s is empty or
// malformed. The listing endpoints use it for page and page_size query
// parameters, where a bad value should mean "first page", not a 400:
//
//	page := utils.AtoiDefault(c.Query("page"), 1)
//	size := utils.AtoiDefault(c.Query("page_size"), 20)
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
