// Package stats derives dashboard and admin metrics from stored records.
// Every aggregate is a fold over records read on demand; nothing is cached.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/store"
)

const (
	historyHours     = 12
	maxAgentTypes    = 6
	heatmapCellLimit = 10
	recentLimit      = 20
)

// Aggregator reads records from the repository and folds them into stats.
type Aggregator struct {
	repo  store.Repository
	clock clockwork.Clock
	loc   *time.Location
}

// NewAggregator creates an Aggregator. loc controls what "today", hour
// buckets and heatmap cells mean; nil uses time.Local.
func NewAggregator(repo store.Repository, clk clockwork.Clock, loc *time.Location) *Aggregator {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{repo: repo, clock: clk, loc: loc}
}

// Records is the full set of rows an aggregate is computed from.
type Records struct {
	Users    []*domain.User
	Agents   []*domain.Agent
	Sessions []*domain.VoiceSession
	Intents  []*domain.IntentLog
}

func (a *Aggregator) load(ctx context.Context) (*Records, error) {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	agents, err := a.repo.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	sessions, err := a.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	intents, err := a.repo.ListIntentLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list intent logs: %w", err)
	}
	return &Records{Users: users, Agents: agents, Sessions: sessions, Intents: intents}, nil
}

// HourBucket is one hour of the trailing call history. Duration is in minutes.
type HourBucket struct {
	Hour     string `json:"hour"`
	Calls    int    `json:"calls"`
	Duration int    `json:"duration"`
}

// NameCount is a labelled count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dashboard is the aggregate shown on the main dashboard.
type Dashboard struct {
	ActiveSessions int                    `json:"activeSessions"`
	TotalAgents    int                    `json:"totalAgents"`
	TotalCalls     int                    `json:"totalCalls"`
	TotalUsers     int                    `json:"totalUsers"`
	AvgDuration    int                    `json:"avgDuration"`
	PhoneNumbers   int                    `json:"phoneNumbers"`
	IntentsToday   int                    `json:"intentsToday"`
	SessionHistory []HourBucket           `json:"sessionHistory"`
	AgentTypes     []NameCount            `json:"agentTypes"`
	Heatmap        [][]int                `json:"heatmap"`
	RecentIntents  []*domain.IntentLog    `json:"recentIntents"`
	RecentSessions []*domain.VoiceSession `json:"recentSessions"`
}

// Dashboard computes the dashboard aggregate.
func (a *Aggregator) Dashboard(ctx context.Context) (*Dashboard, error) {
	recs, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildDashboard(recs, a.clock.Now(), a.loc), nil
}

// BuildDashboard folds records into the dashboard aggregate as of now.
func BuildDashboard(recs *Records, now time.Time, loc *time.Location) *Dashboard {
	now = now.In(loc)
	d := &Dashboard{
		TotalAgents:    len(recs.Agents),
		TotalCalls:     len(recs.Sessions),
		TotalUsers:     len(recs.Users),
		SessionHistory: make([]HourBucket, 0, historyHours),
		AgentTypes:     make([]NameCount, 0, maxAgentTypes),
		Heatmap:        make([][]int, 7),
		RecentIntents:  newestIntents(recs.Intents, recentLimit),
		RecentSessions: newestSessions(recs.Sessions, recentLimit),
	}
	for i := range d.Heatmap {
		d.Heatmap[i] = make([]int, 24)
	}

	phones := make(map[string]struct{})
	var durationSum, durationCount int
	for _, s := range recs.Sessions {
		if s.IsActive() {
			d.ActiveSessions++
		}
		if s.Duration() > 0 {
			durationSum += s.Duration()
			durationCount++
		}
		phones[s.PhoneNumber] = struct{}{}

		started := s.StartedAt.In(loc)
		day, hour := int(started.Weekday()), started.Hour()
		if d.Heatmap[day][hour] < heatmapCellLimit {
			d.Heatmap[day][hour]++
		}
	}
	d.AvgDuration = roundDiv(durationSum, durationCount)
	d.PhoneNumbers = len(phones)

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for _, l := range recs.Intents {
		if !l.CapturedAt.Before(midnight) {
			d.IntentsToday++
		}
	}

	currentHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	for i := 0; i < historyHours; i++ {
		from := currentHour.Add(-time.Duration(historyHours-1-i) * time.Hour)
		to := from.Add(time.Hour)
		bucket := HourBucket{Hour: from.Format("15")}
		var seconds int
		for _, s := range recs.Sessions {
			if !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
				bucket.Calls++
				seconds += s.Duration()
			}
		}
		bucket.Duration = int(math.Round(float64(seconds) / 60))
		d.SessionHistory = append(d.SessionHistory, bucket)
	}

	domains := make(map[string]int)
	for _, ag := range recs.Agents {
		domains[ag.Domain]++
	}
	types := sortedCounts(domains)
	if len(types) > maxAgentTypes {
		types = types[:maxAgentTypes]
	}
	d.AgentTypes = append(d.AgentTypes, types...)

	return d
}

// sortedCounts orders counts by count descending, then name ascending.
func sortedCounts(counts map[string]int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

func newestSessions(sessions []*domain.VoiceSession, limit int) []*domain.VoiceSession {
	out := append(make([]*domain.VoiceSession, 0, len(sessions)), sessions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func newestIntents(intents []*domain.IntentLog, limit int) []*domain.IntentLog {
	out := append(make([]*domain.IntentLog, 0, len(intents)), intents...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
