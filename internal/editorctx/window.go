package editorctx

// MaxContextLines caps the context window radius.
const MaxContextLines = 100

// ContextWindow is the text around the cursor. Requested line numbers that
// fall outside the buffer are listed in Absent instead of being padded.
type ContextWindow struct {
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	LinesBefore []string `json:"lines_before"`
	CurrentLine string   `json:"current_line"`
	LinesAfter  []string `json:"lines_after"`
	Absent      []int    `json:"absent_lines,omitempty"`
}

// ClampContextLines bounds k to [0, MaxContextLines].
func ClampContextLines(k int) int {
	if k < 0 {
		return 0
	}
	if k > MaxContextLines {
		return MaxContextLines
	}
	return k
}

// buildWindow lays out the window [cursor-k, cursor+k]. lines holds the
// buffer text starting at line first; lineCount is the buffer length.
func buildWindow(cursor, k, lineCount, first int, lines []string) ContextWindow {
	w := ContextWindow{
		StartLine:   cursor - k,
		EndLine:     cursor + k,
		LinesBefore: []string{},
		LinesAfter:  []string{},
	}
	for n := w.StartLine; n <= w.EndLine; n++ {
		idx := n - first
		if n < 1 || n > lineCount || idx < 0 || idx >= len(lines) {
			w.Absent = append(w.Absent, n)
			continue
		}
		switch {
		case n < cursor:
			w.LinesBefore = append(w.LinesBefore, lines[idx])
		case n == cursor:
			w.CurrentLine = lines[idx]
		default:
			w.LinesAfter = append(w.LinesAfter, lines[idx])
		}
	}
	return w
}
