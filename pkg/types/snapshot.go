package types

import "github.com/DoyleJ11/math-tennis-backend/internal/scoring"

// ReconnectedData is sent to a participant who came back within the
// grace period. Level is empty when none was picked yet.
type ReconnectedData struct {
	RoomCode  string `json:"roomCode"`
	HostName  string `json:"hostName"`
	GuestName string `json:"guestName"`
	Level     string `json:"level,omitempty"`
	IsHost    bool   `json:"isHost"`
}

// ResyncData follows ReconnectedData when a match is running. Question is
// empty while no question is live (between points, ball in flight).
type ResyncData struct {
	MatchScore   scoring.MatchView   `json:"matchScore"`
	Question     string              `json:"question,omitempty"`
	YourTurn     bool                `json:"yourTurn"`
	Server       scoring.Perspective `json:"server"`
	TimerSeconds int                 `json:"timerSeconds"`
}

// RoomView is the read-only room summary served over HTTP.
type RoomView struct {
	Code       string `json:"code"`
	HostName   string `json:"hostName"`
	GuestName  string `json:"guestName,omitempty"`
	Level      string `json:"level,omitempty"`
	InProgress bool   `json:"inProgress"`
	Full       bool   `json:"full"`
}

type LevelInfo struct {
	Name         string `json:"name"`
	TimerSeconds int    `json:"timerSeconds"`
	Division     bool   `json:"division"`
	MultiStep    bool   `json:"multiStep"`
}
