// Package pattern provides static detection rule sets for common injection
// classes. The rule sets are pure data: matching is deterministic and has no
// side effects, so the same patterns serve both validation (reject) and
// sanitization (strip).
//
// Denylist matching is a secondary control. Parameterized queries and
// context-aware output encoding at the data-access and templating boundaries
// remain the primary defense; these patterns exist for detection and alerting.
package pattern

import "regexp"

// Category identifies one injection class.
type Category string

const (
	HTML    Category = "html"
	SQL     Category = "sql"
	LDAP    Category = "ldap"
	Command Category = "command"
	Path    Category = "path"
	// General is the union of all categories.
	General Category = "general"
)

// Categories returns the concrete categories, excluding General.
func Categories() []Category {
	return []Category{HTML, SQL, LDAP, Command, Path}
}

var htmlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script[^>]*>`),
	regexp.MustCompile(`(?is)<script\b[^>]*>`),
	regexp.MustCompile(`(?is)</script[^>]*>`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?is)<iframe\b[^>]*>`),
	regexp.MustCompile(`(?is)<object\b[^>]*>`),
	regexp.MustCompile(`(?is)<embed\b[^>]*>`),
	regexp.MustCompile(`(?is)<form\b[^>]*>`),
	regexp.MustCompile(`(?is)<meta\b[^>]*>`),
	regexp.MustCompile(`(?is)<link\b[^>]*>`),
	regexp.MustCompile(`(?is)<base\b[^>]*>`),
	regexp.MustCompile(`(?i)expression\s*\(`),
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:union\s+(?:all\s+)?select|select\s+.*\bfrom|insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+(?:table|database|index)|truncate\s+table|alter\s+table|create\s+(?:table|database|index))\b`),
	regexp.MustCompile(`(?i)\b(?:exec|execute)\s*\(`),
	regexp.MustCompile(`--[^\r\n]*`),
	regexp.MustCompile(`/\*.*?\*/`),
	regexp.MustCompile(`(?i);\s*(?:select|insert|update|delete|drop|truncate|alter|create)\b`),
	regexp.MustCompile(`(?i)'\s*or\s+'[^']*'\s*=\s*'`),
	regexp.MustCompile(`(?i)\b(?:or|and)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)\bor\s+true\b`),
	regexp.MustCompile(`(?i)\b(?:information_schema|pg_catalog|sysobjects|syscolumns)\b`),
	regexp.MustCompile(`(?i)\b(?:sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(?`),
	regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
}

var ldapPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\)`),
	regexp.MustCompile(`\(\|`),
	regexp.MustCompile(`\(&`),
	regexp.MustCompile(`\(!`),
	regexp.MustCompile(`\)\s*\(`),
	regexp.MustCompile(`(?i)\(\s*[a-z0-9]+\s*=\s*\*\s*\)`),
	regexp.MustCompile(`\\00`),
	regexp.MustCompile("\x00"),
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile("[;&|`$]"),
	regexp.MustCompile(`\$\([^)]*\)`),
	regexp.MustCompile(`(?i)\b(?:cat|ls|pwd|whoami|id|uname|wget|curl|nc|netcat|bash|sh|cmd|powershell)\b`),
	regexp.MustCompile(`(?:\n|\r)`),
	regexp.MustCompile(`>\s*/`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.\\`),
}

var pathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.\\`),
	regexp.MustCompile(`(?i)%2e%2e[%/\\]`),
	regexp.MustCompile(`(?i)%2e%2e%2f`),
	regexp.MustCompile(`(?i)%2e%2e%5c`),
	regexp.MustCompile(`(?i)\.\.%2f`),
	regexp.MustCompile(`(?i)\.\.%5c`),
	regexp.MustCompile(`(?i)%252e%252e`),
	regexp.MustCompile(`(?i)\.%2e/`),
	regexp.MustCompile(`(?i)%c0%ae`),
}

var patternsByCategory = map[Category][]*regexp.Regexp{
	HTML:    htmlPatterns,
	SQL:     sqlPatterns,
	LDAP:    ldapPatterns,
	Command: commandPatterns,
	Path:    pathPatterns,
}

// Patterns returns the compiled rule set for a category. For General it
// returns the concatenation of every category's rules. The returned slice
// must not be mutated.
func Patterns(c Category) []*regexp.Regexp {
	if c == General {
		var all []*regexp.Regexp
		for _, cat := range Categories() {
			all = append(all, patternsByCategory[cat]...)
		}
		return all
	}
	return patternsByCategory[c]
}

// Valid reports whether c names a known category.
func Valid(c Category) bool {
	if c == General {
		return true
	}
	_, ok := patternsByCategory[c]
	return ok
}

// Matches reports whether s matches any rule in the category. For General,
// a match in any category counts.
func Matches(s string, c Category) bool {
	for _, re := range Patterns(c) {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// FindAll returns every substring of s matched by the category's rules, in
// rule order. Returns nil when nothing matches.
func FindAll(s string, c Category) []string {
	var found []string
	for _, re := range Patterns(c) {
		found = append(found, re.FindAllString(s, -1)...)
	}
	return found
}
