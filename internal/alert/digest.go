// Package alert formats audit digests and delivers them to outbound channels.
// Delivery is fire-and-forget with its own error containment: a channel
// failure is logged locally and swallowed, never propagated to the caller.
package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Finding is one line item of a digest section.
type Finding struct {
	Component string
	Message   string
	Count     int64
}

// Snapshot is the latest metrics snapshot a digest is built from.
type Snapshot struct {
	GeneratedAt  time.Time
	Errors       []Finding
	Warnings     []Finding
	MissingData  []Finding
	EmptyStates  []Finding
	EntityCounts map[string]int64
}

// FormatDigest builds one structured digest string from a snapshot. Output is
// deterministic: sections appear in fixed order and entity counts are sorted
// by name.
func FormatDigest(s Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Audit digest at %s\n", s.GeneratedAt.UTC().Format(time.RFC3339))

	writeSection(&b, "Errors", s.Errors)
	writeSection(&b, "Warnings", s.Warnings)
	writeSection(&b, "Missing data", s.MissingData)
	writeSection(&b, "Empty states", s.EmptyStates)

	if len(s.EntityCounts) > 0 {
		b.WriteString("\nEntity counts:\n")
		names := make([]string, 0, len(s.EntityCounts))
		for name := range s.EntityCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %d\n", name, s.EntityCounts[name])
		}
	}

	return b.String()
}

func writeSection(b *strings.Builder, title string, findings []Finding) {
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(findings))
	if len(findings) == 0 {
		b.WriteString("  none\n")
		return
	}
	for _, f := range findings {
		if f.Count > 1 {
			fmt.Fprintf(b, "  [%s] %s (x%d)\n", f.Component, f.Message, f.Count)
			continue
		}
		fmt.Fprintf(b, "  [%s] %s\n", f.Component, f.Message)
	}
}
