package diag

import (
	"fmt"
	"strings"
)

// Render formats err against the source it was produced from:
//
//	2:7: syntax error [P202]: expected ')' got ','
//	  filter(>3,
//	        ^
//
// Errors without a valid position, or that are not *Error, render as their
// plain message.
func Render(source string, err error) string {
	de, ok := As(err)
	if !ok || !de.Pos.IsValid() {
		return err.Error()
	}

	lines := strings.Split(source, "\n")
	if de.Pos.Line > len(lines) {
		return de.Error()
	}
	line := strings.TrimRight(lines[de.Pos.Line-1], "\r")

	col := de.Pos.Column
	if col < 1 {
		col = 1
	}
	if col > len(line)+1 {
		col = len(line) + 1
	}

	// Keep tabs in the caret line so it lines up under the source.
	var pad strings.Builder
	for i := 0; i < col-1; i++ {
		if line[i] == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
	}

	width := len(de.Token)
	if width < 1 {
		width = 1
	}
	if col-1+width > len(line) && len(line) >= col {
		width = len(line) - (col - 1)
	}

	return fmt.Sprintf("%s\n  %s\n  %s%s", de.Error(), line, pad.String(), strings.Repeat("^", width))
}
