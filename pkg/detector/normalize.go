package detector

import (
	"regexp"
	"strings"

	"github.com/panbanda/clonestream/pkg/models"
)

const (
	blockOpen  = "/*"
	blockClose = "*/"
)

var (
	lineComment        = regexp.MustCompile(`//.*`)
	inlineBlockComment = regexp.MustCompile(`/\*.*?\*/`)
)

// Normalize strips comments and blank lines from raw file text and returns
// the remaining content lines, numbered by their physical line in contents.
//
// Block comments are tracked with a single flag, so nested block comments
// are not supported. A line that closes one block comment and opens another
// is handled left to right: the close is applied first, then any complete
// /* ... */ pairs are removed, then a trailing unterminated opener starts a
// new block.
func Normalize(contents string) []models.ContentLine {
	physical := strings.Split(contents, "\n")
	lines := make([]models.ContentLine, 0, len(physical))
	inBlock := false

	for i, line := range physical {
		if inBlock {
			idx := strings.Index(line, blockClose)
			if idx < 0 {
				continue
			}
			line = line[idx+len(blockClose):]
			inBlock = false
		}

		line = lineComment.ReplaceAllString(line, "")
		line = inlineBlockComment.ReplaceAllString(line, "")

		if idx := strings.Index(line, blockOpen); idx >= 0 {
			line = line[:idx]
			inBlock = true
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		lines = append(lines, models.ContentLine{Number: i + 1, Text: text})
	}

	return lines
}

// JoinText renders content lines back into text, one line per entry.
func JoinText(lines []models.ContentLine) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}
