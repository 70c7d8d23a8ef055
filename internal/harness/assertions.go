package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cellrules/internal/cell"
)

// checkCells compares each path in paths against want.
func (h *Harness) checkCells(step int, paths []string, want map[string]any) {
	for _, path := range paths {
		got, err := h.engine.Get(path)
		if err != nil {
			h.result.AddError(fmt.Sprintf("step %d: %s: %v", step, path, err))
			continue
		}
		if !cell.Equal(got, want[path]) {
			h.result.AddError(fmt.Sprintf("step %d: %s = %s, want %s",
				step, path, formatValue(got), formatValue(want[path])))
		}
	}
}

// checkNotifications compares the notifications sent since the last
// check with want, in order.
func (h *Harness) checkNotifications(step int, want []string) {
	got := h.unchecked
	h.unchecked = nil

	if equalStrings(got, want) {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "step %d: notifications differ\n  want:", step)
	writeList(&b, want)
	b.WriteString("\n  got:")
	writeList(&b, got)
	h.result.AddError(b.String())
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString(" (none)")
		return
	}
	for _, s := range items {
		b.WriteString("\n    ")
		b.WriteString(s)
	}
}
