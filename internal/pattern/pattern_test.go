package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		category Category
		want     bool
	}{
		{name: "script tag", input: "<script>alert(1)</script>", category: HTML, want: true},
		{name: "event handler", input: `<img src=x onerror=alert(1)>`, category: HTML, want: true},
		{name: "javascript uri", input: "javascript:alert(1)", category: HTML, want: true},
		{name: "plain html text", input: "a perfectly normal sentence", category: HTML, want: false},

		{name: "union select", input: "1 UNION SELECT password FROM users", category: SQL, want: true},
		{name: "tautology", input: "1 OR 1=1", category: SQL, want: true},
		{name: "comment", input: "admin'--", category: SQL, want: true},
		{name: "stacked drop", input: "x; DROP TABLE users", category: SQL, want: true},
		{name: "plain sql text", input: "order number 42", category: SQL, want: false},

		{name: "ldap wildcard close", input: "admin*)", category: LDAP, want: true},
		{name: "ldap or filter", input: "(|(uid=admin)", category: LDAP, want: true},
		{name: "plain ldap text", input: "jane.doe", category: LDAP, want: false},

		{name: "command separator", input: "file.txt; reboot", category: Command, want: true},
		{name: "subshell", input: "$(reboot)", category: Command, want: true},
		{name: "binary name", input: "run curl for me", category: Command, want: true},
		{name: "plain command text", input: "hello world", category: Command, want: false},

		{name: "dot dot slash", input: "../../etc/passwd", category: Path, want: true},
		{name: "encoded traversal", input: "%2e%2e%2fetc", category: Path, want: true},
		{name: "plain path", input: "images/avatar.png", category: Path, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.input, tt.category))
		})
	}
}

func TestMatchesGeneral(t *testing.T) {
	// A match in any single category counts for general
	assert.True(t, Matches("<script>x</script>", General))
	assert.True(t, Matches("../secret", General))
	assert.False(t, Matches("hello world", General))
}

func TestValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, Valid(c))
	}
	assert.True(t, Valid(General))
	assert.False(t, Valid(Category("nosql")))
}

func TestPatterns(t *testing.T) {
	total := 0
	for _, c := range Categories() {
		count := len(Patterns(c))
		assert.NotZero(t, count)
		total += count
	}

	// General is the union of every category
	assert.Len(t, Patterns(General), total)
	assert.Nil(t, Patterns(Category("nosql")))
}

func TestFindAll(t *testing.T) {
	found := FindAll("x; ls $(id)", Command)
	assert.NotEmpty(t, found)
	assert.Contains(t, found, ";")
	assert.Contains(t, found, "$(id)")

	assert.Nil(t, FindAll("clean", Command))
}
