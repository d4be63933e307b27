// Package csvexport converts tasks to and from the calendar-import CSV
// layout (Subject, Start Date, ... Location). The writer is strict; the
// reader accepts hand-edited files and skips what it cannot use.
package csvexport

import (
	"encoding/csv"
	"errors"
	"strings"
	"time"

	"smart-todo/internal/observability"
	"smart-todo/internal/tasks"
)

const (
	dateLayout = "01/02/2006"

	// every exported event uses the same one-hour window
	startTime = "10:00 AM"
	endTime   = "11:00 AM"

	importedDescription = "Imported from CSV"
)

var Headers = []string{
	"Subject",
	"Start Date",
	"Start Time",
	"End Date",
	"End Time",
	"All Day Event",
	"Description",
	"Location",
}

var ErrInvalidFormat = errors.New("invalid CSV format: please ensure the file has the correct headers")

var importDateLayouts = []string{dateLayout, "1/2/2006", "2006-01-02"}

// TasksToCSV renders one row per task. Only the deadline's date (in loc)
// is kept. Every cell is quoted; rows are separated by "\n".
func TasksToCSV(list []tasks.Task, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	writeRow(&b, Headers)
	for _, t := range list {
		day := t.Deadline.In(loc).Format(dateLayout)
		b.WriteByte('\n')
		writeRow(&b, []string{
			t.Title,
			day,
			startTime,
			day,
			endTime,
			"False",
			t.Description,
			t.CategoryName,
		})
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
}

// ParseCSVToTasks reads tasks back from CSV. Rows without a Subject are
// skipped, unreadable rows are logged and skipped, and a missing or
// unparseable Start Date becomes now+24h. Imported tasks are Medium
// priority and Pending.
func ParseCSVToTasks(content string, loc *time.Location, now time.Time) ([]tasks.Task, error) {
	if loc == nil {
		loc = time.Local
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	recs := splitRecords(content)
	if len(recs) == 0 {
		return nil, nil
	}
	header, err := recs[0].parse()
	if err != nil || !hasKnownHeader(header) {
		return nil, ErrInvalidFormat
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.ReplaceAll(h, `"`, "")))] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	log := observability.Logger()
	var out []tasks.Task
	for _, rec := range recs[1:] {
		row, err := rec.parse()
		if err != nil {
			log.Warn("skipping unreadable csv row", "line", rec.line, "error", err)
			continue
		}

		subject := field(row, "Subject")
		if subject == "" {
			continue
		}

		description := field(row, "Description")
		if description == "" {
			description = importedDescription
		}

		out = append(out, tasks.Task{
			Title:         subject,
			Description:   description,
			CategoryName:  field(row, "Location"),
			PriorityLabel: tasks.PriorityMedium,
			Status:        tasks.StatusPending,
			Deadline:      parseDate(field(row, "Start Date"), loc, now),
		})
	}
	return out, nil
}

// record is the text of one CSV row. A quoted field may span several
// physical lines.
type record struct {
	line int
	text string
	err  error
}

func (r record) parse() ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	cr := csv.NewReader(strings.NewReader(r.text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	// bare quotes are tolerated inside one line, not across lines
	cr.LazyQuotes = !strings.Contains(r.text, "\n")
	return cr.Read()
}

var errUnterminatedQuote = errors.New("unterminated quoted field")

// splitRecords cuts content into rows so that a broken row never takes
// the rows after it down with it. A line with an open quote is joined with
// the following lines until the quotes balance; if they never do, or the
// joined text does not parse, only the first line is rejected and
// splitting resumes on the next one.
func splitRecords(content string) []record {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var out []record
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}

		text := lines[i]
		quotes := strings.Count(text, `"`)
		j := i
		for quotes%2 != 0 && j+1 < len(lines) {
			j++
			text += "\n" + lines[j]
			quotes += strings.Count(lines[j], `"`)
		}

		rec := record{line: i + 1, text: text}
		switch {
		case quotes%2 != 0:
			rec = record{line: i + 1, err: errUnterminatedQuote}
		case j > i:
			if _, err := rec.parse(); err != nil {
				rec = record{line: i + 1, err: err}
			} else {
				i = j
			}
		}
		out = append(out, rec)
	}
	return out
}

func hasKnownHeader(header []string) bool {
	for _, want := range Headers {
		want = strings.ToLower(want)
		for _, h := range header {
			if strings.Contains(strings.ToLower(h), want) {
				return true
			}
		}
	}
	return false
}

func parseDate(s string, loc *time.Location, now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return now.Add(24 * time.Hour)
}
