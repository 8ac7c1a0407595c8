package stats

import (
	"context"
	"sort"

	"github.com/voiceos/backend/internal/domain"
)

// TypeCount counts intent logs per intent type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DomainCount counts agents per domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// PhoneUsage is the session count and cumulative duration of one number.
type PhoneUsage struct {
	Phone         string `json:"phone"`
	Sessions      int    `json:"sessions"`
	TotalDuration int    `json:"totalDuration"`
}

// UserActivity is the session and agent count of one user.
type UserActivity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Sessions int    `json:"sessions"`
	Agents   int    `json:"agents"`
}

// Admin is the global aggregate shown on the admin page.
type Admin struct {
	TotalUsers         int            `json:"totalUsers"`
	TotalSessions      int            `json:"totalSessions"`
	TotalAgents        int            `json:"totalAgents"`
	TotalCallDuration  int            `json:"totalCallDuration"`
	AvgSessionDuration int            `json:"avgSessionDuration"`
	IntentTypes        []TypeCount    `json:"intentTypes"`
	AgentCategories    []DomainCount  `json:"agentCategories"`
	SessionDropoffs    int            `json:"sessionDropoffs"`
	PhoneNumberUsage   []PhoneUsage   `json:"phoneNumberUsage"`
	UserActivity       []UserActivity `json:"userActivity"`
}

// Admin computes the admin aggregate.
func (a *Aggregator) Admin(ctx context.Context) (*Admin, error) {
	recs, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildAdmin(recs), nil
}

// BuildAdmin folds records into the admin aggregate. Distributions are
// ordered by count descending with ties broken by label.
func BuildAdmin(recs *Records) *Admin {
	out := &Admin{
		TotalUsers:       len(recs.Users),
		TotalSessions:    len(recs.Sessions),
		TotalAgents:      len(recs.Agents),
		IntentTypes:      make([]TypeCount, 0),
		AgentCategories:  make([]DomainCount, 0),
		PhoneNumberUsage: make([]PhoneUsage, 0),
		UserActivity:     make([]UserActivity, 0, len(recs.Users)),
	}

	phones := make(map[string]*PhoneUsage)
	sessionsByUser := make(map[string]int)
	var withDuration int
	for _, s := range recs.Sessions {
		d := s.Duration()
		out.TotalCallDuration += d
		if d > 0 {
			withDuration++
		}
		if s.Reason() == domain.ReasonCapExceeded {
			out.SessionDropoffs++
		}

		usage, ok := phones[s.PhoneNumber]
		if !ok {
			usage = &PhoneUsage{Phone: s.PhoneNumber}
			phones[s.PhoneNumber] = usage
		}
		usage.Sessions++
		usage.TotalDuration += d

		sessionsByUser[s.UserID]++
	}
	out.AvgSessionDuration = roundDiv(out.TotalCallDuration, withDuration)

	for _, u := range phones {
		out.PhoneNumberUsage = append(out.PhoneNumberUsage, *u)
	}
	sort.Slice(out.PhoneNumberUsage, func(i, j int) bool {
		a, b := out.PhoneNumberUsage[i], out.PhoneNumberUsage[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Phone < b.Phone
	})

	intentTypes := make(map[string]int)
	for _, l := range recs.Intents {
		intentTypes[l.IntentType]++
	}
	for _, c := range sortedCounts(intentTypes) {
		out.IntentTypes = append(out.IntentTypes, TypeCount{Type: c.Name, Count: c.Count})
	}

	domains := make(map[string]int)
	agentsByUser := make(map[string]int)
	for _, ag := range recs.Agents {
		domains[ag.Domain]++
		agentsByUser[ag.UserID]++
	}
	for _, c := range sortedCounts(domains) {
		out.AgentCategories = append(out.AgentCategories, DomainCount{Domain: c.Name, Count: c.Count})
	}

	for _, u := range recs.Users {
		out.UserActivity = append(out.UserActivity, UserActivity{
			UserID:   u.ID,
			Email:    u.Email,
			Sessions: sessionsByUser[u.ID],
			Agents:   agentsByUser[u.ID],
		})
	}
	sort.SliceStable(out.UserActivity, func(i, j int) bool {
		a, b := out.UserActivity[i], out.UserActivity[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Email < b.Email
	})

	return out
}
