package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/chatwidget/internal/model/bot"
)

// BuildSystemPrompt renders the system prompt for a chatbot profile.
func BuildSystemPrompt(profile *bot.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", profile.Name)
	if profile.Title != "" {
		fmt.Fprintf(&b, ", a %s", profile.Title)
	}
	b.WriteString(", answering visitors through a chat widget on a website.\n")

	if profile.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s.", profile.Tone)
	}
	if len(profile.Expertise) > 0 {
		fmt.Fprintf(&b, "\nExpertise: %s.", strings.Join(profile.Expertise, ", "))
	}
	if profile.PromptHint != "" {
		fmt.Fprintf(&b, "\nGuidance: %s", profile.PromptHint)
	}

	b.WriteString("\n\nRules:\n- Reply in the visitor's language.\n- Use markdown sparingly; the widget renders it.\n- Keep answers short unless asked for detail.")
	return b.String()
}
