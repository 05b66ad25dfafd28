package domain

import "time"

// Profile - публичный профиль игрока
type Profile struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	PfpURL      string `json:"pfp_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// Player - зарегистрированный в цикле человек
type Player struct {
	FID               int64        `json:"fid"`
	Profile           Profile      `json:"profile"`
	IsRegistered      bool         `json:"is_registered"`
	Score             int          `json:"score"`
	VoteHistory       []VoteRecord `json:"vote_history"`
	InactivityStrikes int          `json:"inactivity_strikes"`
	LastActiveAt      time.Time    `json:"last_active_at"`
	RegisteredAt      time.Time    `json:"registered_at"`
}

// Personality is optional enrichment of a bot's style.
type Personality struct {
	Summary string   `json:"summary"`
	Traits  []string `json:"traits,omitempty"`
	Tone    string   `json:"tone,omitempty"`
}

// Bot - синтетическая копия игрока, используется как соперник для других
type Bot struct {
	FID             int64        `json:"fid"`
	OriginalAuthor  Profile      `json:"original_author"`
	Corpus          []string     `json:"corpus"`
	StyleDescriptor string       `json:"style_descriptor"`
	Personality     *Personality `json:"personality,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
