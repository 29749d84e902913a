// Package util provides small string helpers shared by the command parser
// and the line reader.
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

// CleanArg trims whitespace and surrounding quotes, then unescapes inner quotes.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// CleanArgs returns a copy of args with CleanArg applied to each element.
func CleanArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = CleanArg(a)
	}
	return out
}

// SplitCommand splits a "COMMAND|arg|arg" line into the command and its args.
// A line without separators yields no args.
func SplitCommand(line string) (string, []string) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	cmd := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return cmd, nil
	}
	return cmd, parts[1:]
}
