package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allisson/guardrail/internal/pattern"
)

func TestValidateInput(t *testing.T) {
	assert.True(t, ValidateInput("hello world", pattern.HTML))
	assert.False(t, ValidateInput("<script>alert(1)</script>", pattern.HTML))

	assert.True(t, ValidateInput("order number 42", pattern.SQL))
	assert.False(t, ValidateInput("1 OR 1=1", pattern.SQL))

	// General requires every category to pass
	assert.True(t, ValidateInput("hello world", pattern.General))
	assert.False(t, ValidateInput("../../etc/passwd", pattern.General))
}

func TestSanitizeInputHTML(t *testing.T) {
	t.Run("strips script blocks", func(t *testing.T) {
		out := SanitizeInput("<script>alert('x')</script>Hello", pattern.HTML)
		assert.Equal(t, "Hello", out)
	})

	t.Run("escapes what remains", func(t *testing.T) {
		out := SanitizeInput(`Tom & "Jerry" <b>`, pattern.HTML)
		assert.Equal(t, "Tom &amp; &quot;Jerry&quot; &lt;b&gt;", out)
	})

	t.Run("survives nested tag splitting", func(t *testing.T) {
		out := SanitizeInput("<scr<script>ipt>alert(1)</scr</script>ipt>", pattern.HTML)
		assert.NotContains(t, out, "<script")
	})

	t.Run("idempotent", func(t *testing.T) {
		once := SanitizeInput(`Tom & "Jerry" <b>`, pattern.HTML)
		twice := SanitizeInput(once, pattern.HTML)
		assert.Equal(t, once, twice)
	})
}

func TestSanitizeInputSQL(t *testing.T) {
	out := SanitizeInput("Robert'); DROP TABLE students;--", pattern.SQL)

	assert.NotContains(t, out, "DROP TABLE")
	assert.NotContains(t, out, "--")
}

func TestSanitizeInputLDAP(t *testing.T) {
	out := SanitizeInput("admin)(|(password=*)", pattern.LDAP)

	assert.True(t, ValidateInput(out, pattern.LDAP))
	assert.NotContains(t, out, "(")
	assert.NotContains(t, out, "*")
}

func TestSanitizeInputCommand(t *testing.T) {
	out := SanitizeInput("notes.txt; reboot", pattern.Command)

	assert.True(t, ValidateInput(out, pattern.Command))
	assert.NotContains(t, out, ";")
}

func TestSanitizeInputPath(t *testing.T) {
	out := SanitizeInput("../../etc/passwd", pattern.Path)

	assert.True(t, ValidateInput(out, pattern.Path))
	assert.Equal(t, "etc/passwd", out)
}

func TestSanitizeInputGeneral(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "xss plus sql", input: "<script>alert('xss')</script>; DROP TABLE users"},
		{name: "traversal plus shell", input: "../../bin; $(whoami)"},
		{name: "ldap filter", input: "admin*)(uid=*)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeInput(tt.input, pattern.General)
			assert.True(t, ValidateInput(out, pattern.General), "output %q still matches", out)
		})
	}

	t.Run("collapses whitespace", func(t *testing.T) {
		out := SanitizeInput("  hello \t  world  ", pattern.General)
		assert.Equal(t, "hello world", out)
	})

	t.Run("clean input passes through", func(t *testing.T) {
		out := SanitizeInput("a normal booking note", pattern.General)
		assert.Equal(t, "a normal booking note", out)
	})
}

func TestSanitizeInputUnknownCategory(t *testing.T) {
	out := SanitizeInput("<script>x</script>", pattern.Category("nosql"))
	assert.Equal(t, "<script>x</script>", out)
}

func TestSanitizeObject(t *testing.T) {
	input := map[string]any{
		"name":  "<script>alert(1)</script>Bob",
		"count": 42,
		"tags":  []any{"../etc", "ok"},
		"nested": map[string]any{
			"note": "hello world",
		},
	}

	out, ok := SanitizeObject(input).(map[string]any)
	assert.True(t, ok)

	assert.Equal(t, "Bob", out["name"])
	assert.Equal(t, 42, out["count"])

	tags, ok := out["tags"].([]any)
	assert.True(t, ok)
	assert.Equal(t, "etc", tags[0])
	assert.Equal(t, "ok", tags[1])

	nested, ok := out["nested"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "hello world", nested["note"])
}

func TestSanitizeObjectNil(t *testing.T) {
	assert.Nil(t, SanitizeObject(nil))
}
