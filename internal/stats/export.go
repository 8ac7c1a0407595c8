package stats

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the first row of every export.
const CSVHeader = "Session ID,User Email,Phone Number,Status,Duration (s),Termination Reason,Started At,Ended At"

// ExportCSV renders every session, newest first, joined to its owner's email.
func (a *Aggregator) ExportCSV(ctx context.Context) (string, error) {
	recs, err := a.load(ctx)
	if err != nil {
		return "", err
	}
	return BuildCSV(recs), nil
}

// ExportFilename is the attachment name for an export taken at now.
func (a *Aggregator) ExportFilename() string {
	return "voiceos-export-" + a.clock.Now().In(a.loc).Format("2006-01-02") + ".csv"
}

// BuildCSV renders records as a comma-joined table. Fields are written
// verbatim without quoting. Email and phone number are the only free-text
// cells, and signup and session start reject commas in both. Null values
// become empty cells and timestamps are RFC 3339 in UTC.
func BuildCSV(recs *Records) string {
	emails := make(map[string]string, len(recs.Users))
	for _, u := range recs.Users {
		emails[u.ID] = u.Email
	}

	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteString("\n")
	for _, s := range newestSessions(recs.Sessions, len(recs.Sessions)) {
		duration := ""
		if s.DurationSeconds != nil {
			duration = strconv.Itoa(*s.DurationSeconds)
		}
		ended := ""
		if s.EndedAt != nil {
			ended = s.EndedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			s.ID,
			emails[s.UserID],
			s.PhoneNumber,
			s.Status,
			duration,
			s.Reason(),
			s.StartedAt.UTC().Format(time.RFC3339),
			ended,
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.String()
}
