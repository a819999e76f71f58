// Package sanitize applies the pattern library to classify and transform
// untrusted strings. Validation rejects input that matches a category's rules;
// sanitization destructively strips matches and escapes what remains.
package sanitize

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/allisson/guardrail/internal/pattern"
)

// maxStripPasses bounds the strip loop. Stripping can expose new matches
// (e.g. "<scr<script>ipt>"), so passes repeat until the string is stable.
const maxStripPasses = 10

// ValidateInput reports whether s is free of the category's patterns.
// For pattern.General, s must pass every category.
func ValidateInput(s string, c pattern.Category) bool {
	if c == pattern.General {
		for _, cat := range pattern.Categories() {
			if pattern.Matches(s, cat) {
				return false
			}
		}
		return true
	}
	return !pattern.Matches(s, c)
}

// SanitizeInput destructively sanitizes s for the category: strip every
// pattern match, then apply category-appropriate escaping. The transform is
// idempotent: sanitizing an already-sanitized string returns it unchanged.
func SanitizeInput(s string, c pattern.Category) string {
	switch c {
	case pattern.HTML:
		return escapeHTML(stripMatches(unescapeHTML(s), c))
	case pattern.SQL:
		return escapeSQL(stripMatches(s, c))
	case pattern.LDAP:
		return escapeLDAP(stripMatches(unescapeLDAP(s), c))
	case pattern.Command, pattern.Path:
		return stripMatches(s, c)
	case pattern.General:
		// General strips instead of escaping: entity encoding would leave
		// "&" and ";" behind, which the command metacharacter rules match,
		// so escaped output could never validate clean across categories.
		out := s
		for range maxStripPasses {
			for _, cat := range pattern.Categories() {
				out = stripMatches(out, cat)
			}
			out = stripSpecial(out)
			if ValidateInput(out, pattern.General) {
				break
			}
		}
		out = stripControl(out)
		return collapseWhitespace(out)
	default:
		return s
	}
}

// stripMatches removes every pattern match for the category, repeating until
// no rule matches or the pass budget is exhausted.
func stripMatches(s string, c pattern.Category) string {
	for range maxStripPasses {
		if !pattern.Matches(s, c) {
			return s
		}
		for _, re := range pattern.Patterns(c) {
			s = re.ReplaceAllString(s, "")
		}
	}
	return s
}

// htmlEscapes maps characters to entities. Slash is included so stripped
// fragments cannot be reassembled into closing tags downstream.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

var htmlUnescaper = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#x27;", "'",
	"&#x2F;", "/",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// unescapeHTML reverses escapeHTML so a second sanitize pass does not
// double-encode. Only the entities produced by escapeHTML are reversed.
func unescapeHTML(s string) string {
	return htmlUnescaper.Replace(s)
}

var sqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	"'", "''",
	`"`, `\"`,
)

// escapeSQL escapes quotes and backslashes and drops control characters.
// Defense in depth only: parameterized queries remain the primary control.
func escapeSQL(s string) string {
	return stripControl(sqlEscaper.Replace(s))
}

var ldapEscaper = strings.NewReplacer(
	`\`, `\5c`,
	"(", `\28`,
	")", `\29`,
	"*", `\2a`,
	"&", `\26`,
	"!", `\21`,
	"|", `\7c`,
	"<", `\3c`,
	">", `\3e`,
	"\x00", `\00`,
)

var ldapUnescaper = strings.NewReplacer(
	`\28`, "(",
	`\29`, ")",
	`\2a`, "*",
	`\26`, "&",
	`\21`, "!",
	`\7c`, "|",
	`\3c`, "<",
	`\3e`, ">",
	`\00`, "\x00",
	`\5c`, `\`,
)

func escapeLDAP(s string) string {
	return ldapEscaper.Replace(s)
}

func unescapeLDAP(s string) string {
	return ldapUnescaper.Replace(s)
}

// specialRe covers the characters every category's escaper would otherwise
// encode, plus the shell metacharacters the command rules match one by one.
var specialRe = regexp.MustCompile("[&<>\"'`;|$\\\\*()!]")

func stripSpecial(s string) string {
	return specialRe.ReplaceAllString(s, "")
}

var controlRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

func stripControl(s string) string {
	return controlRe.ReplaceAllString(s, "")
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// SanitizeObject walks maps, slices and strings, sanitizing every string value
// and every string map key with the general category. Non-string scalars pass
// through unchanged. The input is not mutated; a sanitized copy is returned.
//
// The guarantee is best effort: output is clean with respect to the pattern
// library's denylist, nothing more.
func SanitizeObject(v any) any {
	if v == nil {
		return nil
	}
	return sanitizeValue(reflect.ValueOf(v))
}

func sanitizeValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.String:
		return SanitizeInput(rv.String(), pattern.General)

	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return sanitizeValue(rv.Elem())

	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			if key.Kind() != reflect.String {
				// Non-string keys are outside the JSON-shaped contract.
				continue
			}
			cleanKey := SanitizeInput(key.String(), pattern.General)
			out[cleanKey] = sanitizeValue(iter.Value())
		}
		return out

	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := range rv.Len() {
			out = append(out, sanitizeValue(rv.Index(i)))
		}
		return out

	default:
		if !rv.IsValid() {
			return nil
		}
		return rv.Interface()
	}
}
