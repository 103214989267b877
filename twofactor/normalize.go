package twofactor

import "strings"

const (
	backupCodeGroup  = 4
	backupCodeMaxLen = 16
)

// NormalizeBackupCode canonicalizes user-typed backup codes: strip
// everything that is not a letter or digit, uppercase, re-group into
// blocks of four separated by dashes, and cap at sixteen significant
// characters. "ab12 cd34-ef56" and "AB12-CD34-EF56" are the same code.
func NormalizeBackupCode(raw string) string {
	var compact strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			compact.WriteRune(r)
		case r >= 'a' && r <= 'z':
			compact.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			compact.WriteRune(r)
		}
	}

	chars := compact.String()
	if len(chars) > backupCodeMaxLen {
		chars = chars[:backupCodeMaxLen]
	}
	if chars == "" {
		return ""
	}

	var grouped strings.Builder
	for i := 0; i < len(chars); i += backupCodeGroup {
		if i > 0 {
			grouped.WriteByte('-')
		}
		end := i + backupCodeGroup
		if end > len(chars) {
			end = len(chars)
		}
		grouped.WriteString(chars[i:end])
	}
	return grouped.String()
}

// normalizeCode strips spaces from a numeric verification code without
// touching anything else; partial input stays partial so the caller
// can tell "not finished typing" from "wrong".
func normalizeCode(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
