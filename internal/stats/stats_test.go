package stats

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/store"
)

// Wednesday 4 March 2026, 15:30 UTC.
var now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func completed(id, userID, phone string, started time.Time, seconds int, reason string) *domain.VoiceSession {
	return &domain.VoiceSession{
		ID:                id,
		UserID:            userID,
		PhoneNumber:       phone,
		Status:            domain.StatusCompleted,
		StartedAt:         started,
		EndedAt:           timePtr(started.Add(time.Duration(seconds) * time.Second)),
		DurationSeconds:   intPtr(seconds),
		TerminationReason: strPtr(reason),
	}
}

func active(id, userID, phone string, started time.Time) *domain.VoiceSession {
	return &domain.VoiceSession{
		ID:          id,
		UserID:      userID,
		PhoneNumber: phone,
		Status:      domain.StatusActive,
		StartedAt:   started,
	}
}

func sampleRecords() *Records {
	return &Records{
		Users: []*domain.User{
			{ID: "u1", Email: "a@x.com"},
			{ID: "u2", Email: "b@x.com"},
		},
		Agents: []*domain.Agent{
			{ID: "a1", UserID: "u1", Persona: domain.Persona{Domain: "Financial Services - Debt Recovery"}},
			{ID: "a2", UserID: "u1", Persona: domain.Persona{Domain: "Financial Services - Debt Recovery"}},
			{ID: "a3", UserID: "u2", Persona: domain.Persona{Domain: "Insurance - Claims Follow-up"}},
		},
		Sessions: []*domain.VoiceSession{
			completed("s1", "u1", "+15550001", now.Add(-20*time.Minute), 120, domain.ReasonUserEnded),
			completed("s2", "u1", "+15550002", now.Add(-85*time.Minute), 200, domain.ReasonUserEnded),
			active("s3", "u1", "+15550001", now.Add(-10*time.Minute)),
			completed("s4", "u2", "+15550002", now.Add(-48*time.Hour), 600, domain.ReasonCapExceeded),
		},
		Intents: []*domain.IntentLog{
			{ID: "i1", UserID: "u1", IntentText: "loan recovery", IntentType: "Financial Services - Debt Recovery",
				CapturedAt: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
			{ID: "i2", UserID: "u2", IntentText: "claims", IntentType: "Insurance - Claims Follow-up",
				CapturedAt: time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC)},
			{ID: "i3", UserID: "u1", IntentText: "overdue emi", IntentType: "Financial Services - Debt Recovery",
				CapturedAt: now.Add(-time.Minute)},
		},
	}
}

func TestBuildDashboardCounts(t *testing.T) {
	d := BuildDashboard(sampleRecords(), now, time.UTC)

	if d.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", d.ActiveSessions)
	}
	if d.TotalAgents != 3 || d.TotalCalls != 4 || d.TotalUsers != 2 {
		t.Errorf("totals = agents %d calls %d users %d", d.TotalAgents, d.TotalCalls, d.TotalUsers)
	}
	// (120 + 200 + 600) / 3, active session excluded
	if d.AvgDuration != 307 {
		t.Errorf("AvgDuration = %d, want 307", d.AvgDuration)
	}
	if d.PhoneNumbers != 2 {
		t.Errorf("PhoneNumbers = %d, want 2", d.PhoneNumbers)
	}
	if d.IntentsToday != 2 {
		t.Errorf("IntentsToday = %d, want 2", d.IntentsToday)
	}
}

func TestBuildDashboardSessionHistory(t *testing.T) {
	d := BuildDashboard(sampleRecords(), now, time.UTC)

	if len(d.SessionHistory) != 12 {
		t.Fatalf("expected 12 buckets, got %d", len(d.SessionHistory))
	}
	if first := d.SessionHistory[0]; first.Hour != "04" {
		t.Errorf("first bucket hour = %q, want 04", first.Hour)
	}

	last := d.SessionHistory[11]
	if last.Hour != "15" || last.Calls != 2 || last.Duration != 2 {
		t.Errorf("last bucket = %+v, want {15 2 2}", last)
	}
	prev := d.SessionHistory[10]
	if prev.Hour != "14" || prev.Calls != 1 || prev.Duration != 3 {
		t.Errorf("previous bucket = %+v, want {14 1 3}", prev)
	}

	total := 0
	for _, b := range d.SessionHistory {
		total += b.Calls
	}
	if total != 3 {
		t.Errorf("expected the 48h old session outside the window, got %d calls", total)
	}
}

func TestBuildDashboardHeatmap(t *testing.T) {
	recs := sampleRecords()
	sunday := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		recs.Sessions = append(recs.Sessions, completed("x", "u1", "+1999", sunday.Add(time.Duration(i)*time.Minute), 1, domain.ReasonUserEnded))
	}

	d := BuildDashboard(recs, now, time.UTC)

	if len(d.Heatmap) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(d.Heatmap))
	}
	for i, row := range d.Heatmap {
		if len(row) != 24 {
			t.Fatalf("row %d has %d columns", i, len(row))
		}
	}
	if got := d.Heatmap[int(time.Wednesday)][15]; got != 2 {
		t.Errorf("Wednesday 15h = %d, want 2", got)
	}
	if got := d.Heatmap[int(time.Monday)][15]; got != 1 {
		t.Errorf("Monday 15h = %d, want 1", got)
	}
	if got := d.Heatmap[int(time.Sunday)][9]; got != 10 {
		t.Errorf("Sunday 9h = %d, want cap of 10", got)
	}
}

func TestBuildDashboardAgentTypesTopSix(t *testing.T) {
	recs := &Records{}
	counts := map[string]int{"A": 3, "B": 1, "C": 2, "D": 1, "E": 1, "F": 1, "G": 1}
	for name, n := range counts {
		for i := 0; i < n; i++ {
			recs.Agents = append(recs.Agents, &domain.Agent{Persona: domain.Persona{Domain: name}})
		}
	}

	d := BuildDashboard(recs, now, time.UTC)

	want := []NameCount{{"A", 3}, {"C", 2}, {"B", 1}, {"D", 1}, {"E", 1}, {"F", 1}}
	if len(d.AgentTypes) != len(want) {
		t.Fatalf("AgentTypes = %+v", d.AgentTypes)
	}
	for i := range want {
		if d.AgentTypes[i] != want[i] {
			t.Errorf("AgentTypes[%d] = %+v, want %+v", i, d.AgentTypes[i], want[i])
		}
	}
}

func TestBuildDashboardRecentOrdering(t *testing.T) {
	recs := &Records{}
	for i := 0; i < 25; i++ {
		recs.Sessions = append(recs.Sessions, active("s", "u", "+1", now.Add(-time.Duration(i)*time.Hour)))
		recs.Intents = append(recs.Intents, &domain.IntentLog{CapturedAt: now.Add(-time.Duration(i) * time.Minute)})
	}
	// reverse so input is oldest first
	for i, j := 0, len(recs.Sessions)-1; i < j; i, j = i+1, j-1 {
		recs.Sessions[i], recs.Sessions[j] = recs.Sessions[j], recs.Sessions[i]
	}

	d := BuildDashboard(recs, now, time.UTC)

	if len(d.RecentSessions) != 20 || len(d.RecentIntents) != 20 {
		t.Fatalf("recent lengths = %d sessions, %d intents", len(d.RecentSessions), len(d.RecentIntents))
	}
	if !d.RecentSessions[0].StartedAt.Equal(now) {
		t.Errorf("expected newest session first, got %v", d.RecentSessions[0].StartedAt)
	}
	if !d.RecentIntents[0].CapturedAt.Equal(now) {
		t.Errorf("expected newest intent first, got %v", d.RecentIntents[0].CapturedAt)
	}
}

func TestBuildDashboardTimezone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC) // 01:30 on 5 March in IST
	recs := &Records{Intents: []*domain.IntentLog{
		{CapturedAt: time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC)}, // 00:30 IST
		{CapturedAt: time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)}, // 23:30 IST previous day
	}}

	if got := BuildDashboard(recs, at, ist).IntentsToday; got != 1 {
		t.Errorf("IntentsToday in IST = %d, want 1", got)
	}
	if got := BuildDashboard(recs, at, time.UTC).IntentsToday; got != 2 {
		t.Errorf("IntentsToday in UTC = %d, want 2", got)
	}
	if got := BuildDashboard(recs, at, ist).SessionHistory[11].Hour; got != "01" {
		t.Errorf("current bucket hour in IST = %q, want 01", got)
	}
}

func TestBuildDashboardEmpty(t *testing.T) {
	d := BuildDashboard(&Records{}, now, time.UTC)

	if d.AvgDuration != 0 || d.ActiveSessions != 0 || d.IntentsToday != 0 {
		t.Errorf("expected zero counts, got %+v", d)
	}
	if len(d.SessionHistory) != 12 {
		t.Errorf("expected 12 empty buckets, got %d", len(d.SessionHistory))
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), "null") {
		t.Errorf("empty dashboard should encode lists as [], got %s", raw)
	}
}

func TestBuildAdmin(t *testing.T) {
	a := BuildAdmin(sampleRecords())

	if a.TotalUsers != 2 || a.TotalSessions != 4 || a.TotalAgents != 3 {
		t.Errorf("totals = %+v", a)
	}
	if a.TotalCallDuration != 920 {
		t.Errorf("TotalCallDuration = %d, want 920", a.TotalCallDuration)
	}
	if a.AvgSessionDuration != 307 {
		t.Errorf("AvgSessionDuration = %d, want 307", a.AvgSessionDuration)
	}
	if a.SessionDropoffs != 1 {
		t.Errorf("SessionDropoffs = %d, want 1", a.SessionDropoffs)
	}

	wantIntents := []TypeCount{
		{"Financial Services - Debt Recovery", 2},
		{"Insurance - Claims Follow-up", 1},
	}
	if len(a.IntentTypes) != 2 || a.IntentTypes[0] != wantIntents[0] || a.IntentTypes[1] != wantIntents[1] {
		t.Errorf("IntentTypes = %+v", a.IntentTypes)
	}
	if len(a.AgentCategories) != 2 || a.AgentCategories[0].Domain != "Financial Services - Debt Recovery" || a.AgentCategories[0].Count != 2 {
		t.Errorf("AgentCategories = %+v", a.AgentCategories)
	}

	wantPhones := []PhoneUsage{
		{Phone: "+15550001", Sessions: 2, TotalDuration: 120},
		{Phone: "+15550002", Sessions: 2, TotalDuration: 800},
	}
	if len(a.PhoneNumberUsage) != 2 || a.PhoneNumberUsage[0] != wantPhones[0] || a.PhoneNumberUsage[1] != wantPhones[1] {
		t.Errorf("PhoneNumberUsage = %+v", a.PhoneNumberUsage)
	}

	wantUsers := []UserActivity{
		{UserID: "u1", Email: "a@x.com", Sessions: 3, Agents: 2},
		{UserID: "u2", Email: "b@x.com", Sessions: 1, Agents: 1},
	}
	if len(a.UserActivity) != 2 || a.UserActivity[0] != wantUsers[0] || a.UserActivity[1] != wantUsers[1] {
		t.Errorf("UserActivity = %+v", a.UserActivity)
	}
}

func TestBuildAdminEmpty(t *testing.T) {
	raw, err := json.Marshal(BuildAdmin(&Records{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), "null") {
		t.Errorf("empty admin stats should encode lists as [], got %s", raw)
	}
}

func TestBuildCSV(t *testing.T) {
	got := BuildCSV(sampleRecords())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")

	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d:\n%s", len(lines), got)
	}
	if lines[0] != CSVHeader {
		t.Errorf("header = %q", lines[0])
	}
	// s3 is the newest and still active
	if want := "s3,a@x.com,+15550001,active,,," + now.Add(-10*time.Minute).Format(time.RFC3339) + ","; lines[1] != want {
		t.Errorf("active row = %q, want %q", lines[1], want)
	}
	if want := "s1,a@x.com,+15550001,completed,120,user_ended,2026-03-04T15:10:00Z,2026-03-04T15:12:00Z"; lines[2] != want {
		t.Errorf("completed row = %q, want %q", lines[2], want)
	}
	if !strings.HasPrefix(lines[4], "s4,b@x.com,") || !strings.Contains(lines[4], ",600,cap_exceeded,") {
		t.Errorf("oldest row = %q", lines[4])
	}
}

func TestBuildCSVUnknownOwner(t *testing.T) {
	recs := &Records{Sessions: []*domain.VoiceSession{active("s1", "ghost", "+1", now)}}
	lines := strings.Split(strings.TrimSuffix(BuildCSV(recs), "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "s1,,+1,") {
		t.Errorf("expected empty email cell, got %q", lines)
	}
}

func TestAggregatorReadsStore(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "voiceos.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	user := &domain.User{Email: "a@x.com", Mobile: "555", CountryCode: "+1"}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	agent := &domain.Agent{UserID: user.ID, Intent: "loan", Persona: domain.Persona{Domain: "Financial Services - Debt Recovery"}}
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := repo.CreateSession(ctx, completed("", user.ID, "+1555", now.Add(-time.Hour), 90, domain.ReasonUserEnded)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	agg := NewAggregator(repo, clockwork.NewFakeClockAt(now), time.UTC)

	dash, err := agg.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.TotalUsers != 1 || dash.TotalAgents != 1 || dash.TotalCalls != 1 || dash.AvgDuration != 90 {
		t.Errorf("unexpected dashboard: %+v", dash)
	}

	admin, err := agg.Admin(ctx)
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if len(admin.UserActivity) != 1 || admin.UserActivity[0].Email != "a@x.com" || admin.UserActivity[0].Agents != 1 {
		t.Errorf("unexpected user activity: %+v", admin.UserActivity)
	}

	csv, err := agg.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if !strings.Contains(csv, ",a@x.com,+1555,completed,90,user_ended,") {
		t.Errorf("unexpected export:\n%s", csv)
	}

	if got := agg.ExportFilename(); got != "voiceos-export-2026-03-04.csv" {
		t.Errorf("ExportFilename = %q", got)
	}
}

func TestAggregatorEmptyStore(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "voiceos.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	agg := NewAggregator(repo, clockwork.NewFakeClockAt(now), nil)
	dash, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.TotalCalls != 0 || len(dash.RecentSessions) != 0 {
		t.Errorf("expected empty dashboard, got %+v", dash)
	}

	csv, err := agg.ExportCSV(context.Background())
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if csv != CSVHeader+"\n" {
		t.Errorf("expected header only, got %q", csv)
	}
}
