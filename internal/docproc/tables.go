package docproc

import (
	"regexp"
	"strings"
)

// Table indicator patterns: a cheap screen run before any real table
// detection so pages with no tabular content skip the expensive path.
var tableIndicatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\|\s*[\w\s]+\s*\|`),             // pipe-delimited run
	regexp.MustCompile(`\+-+\+`),                        // ASCII box border
	regexp.MustCompile(`[\w\s]+\s+\|\s+[\w\s]+`),        // text either side of a pipe
	regexp.MustCompile(`(?i)\b(table|tab\.?|tbl)\b`),    // table reference
	regexp.MustCompile(`\s{4,}[\w\s]+\s{4,}[\w\s]+`),    // wide-space columns
	regexp.MustCompile(`\t+[\w\s]+\t+[\w\s]+`),          // tab columns
}

var (
	wideSpaceSplit = regexp.MustCompile(`\s{3,}`)
	numberPairRe   = regexp.MustCompile(`\d+[,\d]*\s+\d+[,\d]*`)
)

// hasTableIndicators reports whether text contains patterns suggesting
// tabular content. Only the first 50 lines are scanned for the row check.
func hasTableIndicators(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range tableIndicatorPatterns {
		if p.MatchString(text) {
			return true
		}
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 50 {
		lines = lines[:50]
	}
	tableLike := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.Count(line, "|") >= 2:
			tableLike++
		case len(wideSpaceSplit.Split(line, -1)) >= 3:
			tableLike++
		case numberPairRe.MatchString(line):
			tableLike++
		}
	}
	return tableLike >= 3
}

// detectTables runs line-based table detection over a page's text: runs of
// consecutive lines that split into the same multi-column shape (pipes or
// wide spacing) become one table. startIndex keeps table indices contiguous
// across pages.
func detectTables(pageText string, page, startIndex int) []Table {
	var tables []Table
	var run [][]string

	flush := func() {
		if len(run) >= 2 {
			cols := 0
			for _, row := range run {
				if len(row) > cols {
					cols = len(row)
				}
			}
			tables = append(tables, Table{
				Index:  startIndex + len(tables),
				Data:   run,
				Rows:   len(run),
				Cols:   cols,
				Page:   page,
				Method: "text_lines",
			})
		}
		run = nil
	}

	for _, line := range strings.Split(pageText, "\n") {
		cells, ok := splitTableRow(line)
		if !ok {
			flush()
			continue
		}
		run = append(run, cells)
	}
	flush()
	return tables
}

// splitTableRow splits a line into cells when it looks like a table row:
// at least two interior pipes, or at least three wide-space columns.
func splitTableRow(line string) ([]string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	if strings.Count(trimmed, "|") >= 2 {
		parts := strings.Split(strings.Trim(trimmed, "|"), "|")
		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}
		return cells, true
	}
	parts := wideSpaceSplit.Split(trimmed, -1)
	if len(parts) >= 3 {
		return parts, true
	}
	return nil, false
}
