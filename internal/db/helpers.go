package db

import (
	"strings"
)

// cleanNumeric strips sentinel values ("unknown", "-1", and
// inequality-prefixed/suffixed placeholders like "<1" or "20?") that show
// up in raw CSV exports in place of a true NULL.
func cleanNumeric(val string) string {
	val = strings.TrimSpace(val)
	if val == "" || val == "unknown" || val == "-1" {
		return ""
	}
	if strings.HasSuffix(val, "?") || strings.HasPrefix(val, "<") || strings.HasPrefix(val, ">") {
		return ""
	}
	return val
}

func cleanText(val string) string {
	val = strings.TrimSpace(val)
	if val == "" || val == "unknown" {
		return ""
	}
	return val
}

// cleanBoolean normalizes the handful of boolean spellings seen across
// source CSVs into Postgres boolean literals, or "" for unset.
func cleanBoolean(val string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	if val == "true" || val == "t" || val == "1" {
		return "true"
	}
	if val == "false" || val == "f" || val == "0" {
		return "false"
	}
	return ""
}
