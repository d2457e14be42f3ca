package bot

// Profile is a chatbot the answering service can impersonate. APIKey is the
// credential widgets send in X-Api-Key.
type Profile struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name"`
	ThemeColor string   `json:"themeColor"`
	Title      string   `json:"title,omitempty"`
	Tone       string   `json:"tone,omitempty"`
	PromptHint string   `json:"promptHint,omitempty"`
	Greeting   string   `json:"greeting,omitempty"`
	Expertise  []string `json:"expertise,omitempty"`
	APIKey     string   `json:"-"`
}

// Info is the public part of a profile returned to widgets.
type Info struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	ThemeColor string `json:"themeColor"`
}

// Info strips everything a widget must not see.
func (p Profile) Info() Info {
	return Info{UUID: p.UUID, Name: p.Name, ThemeColor: p.ThemeColor}
}

// DemoAPIKey is the credential of the first seeded profile.
const DemoAPIKey = "demo-key"

// Seed provides the default chatbots. A non-empty apiKey replaces the key of
// the first profile.
func Seed(apiKey string) []Profile {
	if apiKey == "" {
		apiKey = DemoAPIKey
	}
	return []Profile{
		{
			UUID:       "6f1c2a4e-7d0b-4f7a-9a53-1d2e8b0c4a11",
			Name:       "Docs Assistant",
			ThemeColor: "#2563eb",
			Title:      "product documentation guide",
			Tone:       "concise, friendly, precise",
			PromptHint: "Answer from the product documentation; say so when you are unsure.",
			Greeting:   "Hi! Ask me anything about the docs.",
			Expertise:  []string{"setup", "configuration", "troubleshooting"},
			APIKey:     apiKey,
		},
		{
			UUID:       "b9e4d8f2-3c61-4e0a-8f7d-52a9c6e1b733",
			Name:       "Support Bot",
			ThemeColor: "#16a34a",
			Title:      "customer support agent",
			Tone:       "patient, empathetic, practical",
			PromptHint: "Collect the details of the problem before suggesting a fix.",
			Greeting:   "Hello! How can I help you today?",
			Expertise:  []string{"billing", "accounts", "orders"},
			APIKey:     "support-key",
		},
	}
}
