package domain

import (
	"time"
)

// Persona is the bundle of fields derived from an intent. The same keyword
// matches always yield the same Persona.
type Persona struct {
	AgentName            string   `json:"agentName"`
	Personality          string   `json:"personality"`
	Tone                 string   `json:"tone"`
	Domain               string   `json:"domain"`
	Objective            string   `json:"objective"`
	RiskSensitivity      string   `json:"riskSensitivity"`
	EmotionalCalibration string   `json:"emotionalCalibration"`
	CommunicationStyle   string   `json:"communicationStyle"`
	DomainContext        string   `json:"domainContext"`
	ConversationRules    []string `json:"conversationRules"`
	RiskFlags            []string `json:"riskFlags"`
	ClosingGoal          string   `json:"closingGoal"`
	SystemPrompt         string   `json:"systemPrompt"`
}

// Agent is a generated persona owned by a user. Agents are immutable once created.
type Agent struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Intent string `json:"intent"`
	Persona
	CreatedAt time.Time `json:"createdAt"`
}
