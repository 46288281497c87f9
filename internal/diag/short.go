package diag

import (
	"fmt"
	"strings"
)

// Short renders d on one line: "<severity> <code> <span> <message>".
func Short(d Diagnostic) string {
	msg := strings.Join(strings.Fields(d.Message), " ")
	return fmt.Sprintf("%s %s %s %s", d.Severity, d.Code.ID(), d.Span, msg)
}

// FormatShort renders one line per diagnostic in span order.
func FormatShort(diags []Diagnostic) string {
	b := Bag{items: diags}
	lines := make([]string, 0, len(diags))
	for _, d := range b.Sorted() {
		lines = append(lines, Short(d))
	}
	return strings.Join(lines, "\n")
}
