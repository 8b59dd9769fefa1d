// Package util provides common utility functions for host argument handling.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg undoes the host's string quoting: outer quotes are trimmed and
// doubled inner quotes collapsed.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// CleanArgs applies CleanArg to every element in place and returns the slice.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = CleanArg(v)
	}
	return args
}

// EscapeQuotes doubles every double quote so s can be embedded in a host string literal.
func EscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
