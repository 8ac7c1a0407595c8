package intent

import (
	"fmt"
	"strings"

	"github.com/voiceos/backend/internal/domain"
)

// RenderSystemPrompt interpolates a persona into the voice agent prompt,
// embedding the original intent verbatim.
func RenderSystemPrompt(p domain.Persona, intent string) string {
	return fmt.Sprintf(`You are %s, a voice agent for %s.

Original intent: "%s"

Personality: %s
Tone: %s
Objective: %s
Communication style: %s
Emotional calibration: %s
Risk sensitivity: %s
Domain context: %s

Conversation rules:
- %s

Escalate or handle with extra care if any of these occur:
- %s

Closing goal: %s

Speak naturally and briefly, as on a phone call. Ask one question at a time.`,
		p.AgentName,
		p.Domain,
		intent,
		p.Personality,
		p.Tone,
		p.Objective,
		p.CommunicationStyle,
		p.EmotionalCalibration,
		p.RiskSensitivity,
		p.DomainContext,
		strings.Join(p.ConversationRules, "\n- "),
		strings.Join(p.RiskFlags, "\n- "),
		p.ClosingGoal,
	)
}

// DefaultSystemPrompt is used for calls started without any agent.
func DefaultSystemPrompt() string {
	return RenderSystemPrompt(fallback.persona(), "General assistance")
}
