package types

import "github.com/DoyleJ11/math-tennis-backend/internal/scoring"

type ClientMessage struct {
	Type       string `json:"type"`
	PlayerName string `json:"player_name,omitempty"`
	RoomCode   string `json:"room_code,omitempty"`
	Level      string `json:"level,omitempty"`
	Answer     *int   `json:"answer,omitempty"`
}

// ServerMessage carries one of the typed payloads below in Data.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client -> Server
//
// room:create        player_name
// room:join          room_code, player_name
// room:leave         {}
// room:reconnect     room_code, player_name
// game:select-level  level
// game:answer        answer
const (
	RoomCreate      = "room:create"
	RoomJoin        = "room:join"
	RoomLeave       = "room:leave"
	RoomReconnect   = "room:reconnect"
	GameSelectLevel = "game:select-level"
	GameAnswer      = "game:answer"
)

// Server -> Client. Payloads are relative to the receiver: "player" is
// the receiver, "opponent" the other seat.
const (
	RoomCreated          = "room:created"
	RoomJoined           = "room:joined"
	RoomOpponentJoined   = "room:opponent-joined"
	RoomOpponentLeft     = "room:opponent-left"
	RoomReconnected      = "room:reconnected"
	RoomError            = "room:error"
	GameLevelSelected    = "game:level-selected"
	GameStart            = "game:start"
	GameQuestion         = "game:question"
	GameAnswerResult     = "game:answer-result"
	GameOpponentAnswered = "game:opponent-answered"
	GameScoreUpdate      = "game:score-update"
	GameTimerExpired     = "game:timer-expired"
	GameMatchOver        = "game:match-over"
	GameResync           = "game:resync"
	OpponentDisconnected = "connection:opponent-disconnected"
	OpponentReconnected  = "connection:opponent-reconnected"
)

type RoomCreatedData struct {
	RoomCode string `json:"roomCode"`
}

type RoomJoinedData struct {
	RoomCode  string `json:"roomCode"`
	HostName  string `json:"hostName"`
	GuestName string `json:"guestName"`
}

type OpponentJoinedData struct {
	OpponentName string `json:"opponentName"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type LevelSelectedData struct {
	Level string `json:"level"`
}

type StartData struct {
	Question     string              `json:"question"`
	YourTurn     bool                `json:"yourTurn"`
	Server       scoring.Perspective `json:"server"`
	TimerSeconds int                 `json:"timerSeconds"`
}

type QuestionData struct {
	Question     string `json:"question"`
	YourTurn     bool   `json:"yourTurn"`
	TimerSeconds int    `json:"timerSeconds"`
}

type AnswerResultData struct {
	Correct bool `json:"correct"`
}

type ScoreUpdateData struct {
	MatchScore  scoring.MatchView   `json:"matchScore"`
	PointScorer scoring.Perspective `json:"pointScorer"`
}

type TimerExpiredData struct {
	Who scoring.Perspective `json:"who"`
}

type MatchOverData struct {
	Winner scoring.Perspective `json:"winner"`
}
