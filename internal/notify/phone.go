package notify

import "strings"

// NormalizePhone converts a local number to E.164 for India: ten digits
// get +91, twelve digits starting with 91 get a plus sign.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+91" + digits
	default:
		return "+" + digits
	}
}
