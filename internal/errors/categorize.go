package errors

import "strings"

// Category classifies internal errors for alert routing. The classification is
// heuristic: it inspects the error text, so it is advisory only and must never
// drive control flow.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryDatabase      Category = "database"
	CategoryPayment       Category = "payment"
	CategoryAuth          Category = "auth"
	CategoryValidation    Category = "validation"
	CategoryUI            Category = "ui"
	CategoryAuthorization Category = "authorization"
	CategoryGeneral       Category = "general"
)

// categoryHints maps lowercase substrings to categories. First match wins,
// checked in declaration order.
var categoryHints = []struct {
	hint     string
	category Category
}{
	{"sql", CategoryDatabase},
	{"database", CategoryDatabase},
	{"connection refused", CategoryDatabase},
	{"deadlock", CategoryDatabase},
	{"timeout", CategoryNetwork},
	{"network", CategoryNetwork},
	{"dial tcp", CategoryNetwork},
	{"dns", CategoryNetwork},
	{"payment", CategoryPayment},
	{"stripe", CategoryPayment},
	{"charge", CategoryPayment},
	{"refund", CategoryPayment},
	{"token", CategoryAuth},
	{"credential", CategoryAuth},
	{"login", CategoryAuth},
	{"session", CategoryAuth},
	{"permission", CategoryAuthorization},
	{"forbidden", CategoryAuthorization},
	{"access denied", CategoryAuthorization},
	{"validation", CategoryValidation},
	{"invalid", CategoryValidation},
	{"render", CategoryUI},
	{"template", CategoryUI},
}

// Categorize assigns an alert-routing category to an error based on its message.
// Returns CategoryGeneral when nothing matches or err is nil.
func Categorize(err error) Category {
	if err == nil {
		return CategoryGeneral
	}

	msg := strings.ToLower(err.Error())
	for _, h := range categoryHints {
		if strings.Contains(msg, h.hint) {
			return h.category
		}
	}

	return CategoryGeneral
}
