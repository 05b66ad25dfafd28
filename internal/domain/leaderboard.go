package domain

import "time"

// LeaderboardEntry - строка таблицы лидеров
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	FID              int64   `json:"fid"`
	Username         string  `json:"username"`
	Correct          int     `json:"correct"`
	Total            int     `json:"total"`
	Accuracy         float64 `json:"accuracy"`
	AvgSpeedMs       int64   `json:"avg_speed_ms"`
	HumanityVerified bool    `json:"humanity_verified"`
}

// BotStanding shows how often a bot fooled the humans it faced.
type BotStanding struct {
	FID             int64  `json:"fid"`
	Username        string `json:"username"`
	Fooled          int    `json:"fooled"`
	Interactions    int    `json:"interactions"`
	DeceptionRating int    `json:"deception_rating"`
}

// Leaderboard is the frozen (or live) result of a cycle.
type Leaderboard struct {
	CycleID string             `json:"cycle_id"`
	Final   bool               `json:"final"`
	Players []LeaderboardEntry `json:"players"`
	Bots    []BotStanding      `json:"bots"`
}

// CycleSummary describes one archived cycle.
type CycleSummary struct {
	CycleID     string    `json:"cycle_id"`
	PlayerCount int       `json:"player_count"`
	BotCount    int       `json:"bot_count"`
	FinishedAt  time.Time `json:"finished_at"`
}
