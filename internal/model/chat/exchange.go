package chat

import "time"

// Exchange is one answered question as the answering service records it.
type Exchange struct {
	ID        string    `json:"id"`
	BotID     string    `json:"botId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Model     string    `json:"model,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
