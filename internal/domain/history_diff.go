package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CanonicalText flattens a history snapshot into sorted "field: value" lines
// suitable for diffing.
func (h HistoryRecord) CanonicalText() []string {
	lines := []string{
		fmt.Sprintf("Version: %d", h.Version),
		fmt.Sprintf("ChangeType: %s", h.ChangeType),
		"Fields:",
	}
	if len(h.Fields) == 0 {
		return append(lines, "  (empty)")
	}

	names := make([]string, 0, len(h.Fields))
	for name := range h.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s: %s", name, canonicalValue(h.Fields[name])))
	}
	return lines
}

func canonicalValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", typed)
	case time.Time:
		return typed.UTC().Format(DateTimeLayout)
	}
	return fmt.Sprint(v)
}

// DiffHistory produces a unified diff between two versions of a record. A
// nil side diffs against nothing.
func DiffHistory(base, target *HistoryRecord) string {
	var baseLines, targetLines []string
	baseLabel, targetLabel := "/dev/null", "/dev/null"
	if base != nil {
		baseLines = base.CanonicalText()
		baseLabel = fmt.Sprintf("version %d", base.Version)
	}
	if target != nil {
		targetLines = target.CanonicalText()
		targetLabel = fmt.Sprintf("version %d", target.Version)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", baseLabel, targetLabel)
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(baseLines), len(targetLines))
	for _, op := range diffLines(baseLines, targetLines) {
		b.WriteString(op)
		b.WriteByte('\n')
	}
	return b.String()
}

// diffLines aligns two line sets on their longest common subsequence and
// returns each line prefixed with ' ', '-' or '+'.
func diffLines(base, target []string) []string {
	m, n := len(base), len(target)
	// lcs[i][j] is the common subsequence length of base[i:] and target[j:]
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case base[i] == target[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	out := make([]string, 0, m+n)
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && base[i] == target[j]:
			out = append(out, " "+base[i])
			i++
			j++
		case j == n || (i < m && lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, "-"+base[i])
			i++
		default:
			out = append(out, "+"+target[j])
			j++
		}
	}
	return out
}
