// Package motionquiz defines the core domain types shared by the session
// engine. It imports nothing outside the standard library.
package motionquiz

import "time"

type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusCountdown SessionStatus = "countdown"
	StatusActive    SessionStatus = "active"
	StatusResults   SessionStatus = "results"
	StatusFinished  SessionStatus = "finished"
)

type Settings struct {
	TimePerQuestion int  `json:"time_per_question"` // seconds
	SpeedBonus      bool `json:"speed_bonus"`
	MultiModal      bool `json:"multi_modal"`
	AllowLateJoin   bool `json:"allow_late_join"`
	AutoClose       bool `json:"auto_close"`
}

// DefaultSettings mirrors the room defaults hosts get when they send none.
func DefaultSettings() Settings {
	return Settings{
		TimePerQuestion: 30,
		SpeedBonus:      true,
		MultiModal:      true,
		AllowLateJoin:   true,
		AutoClose:       true,
	}
}

type Session struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"room_id"`
	HostID       string        `json:"host_id"`
	Status       SessionStatus `json:"status"`
	CurrentRound int           `json:"current_round"`
	TotalRounds  int           `json:"total_rounds"`
	Settings     Settings      `json:"settings"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
}

type RoundStatus string

const (
	RoundActive RoundStatus = "active"
	RoundSealed RoundStatus = "sealed"
)

type Round struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Number     int           `json:"number"`
	QuestionID string        `json:"question_id"`
	Status     RoundStatus   `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	SealedAt   *time.Time    `json:"sealed_at,omitempty"`
}

// Deadline is the instant the round timer expires.
func (r Round) Deadline() time.Time { return r.StartedAt.Add(r.Duration) }

type Response struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	RoundID       string        `json:"round_id"`
	QuestionID    string        `json:"question_id"`
	UserID        string        `json:"user_id"`
	Payload       Payload       `json:"payload"`
	IsCorrect     bool          `json:"is_correct"`
	Accuracy      float64       `json:"accuracy"`
	Confidence    float64       `json:"confidence"`
	TimeToRespond time.Duration `json:"time_to_respond"`
	Points        int           `json:"points"`
	TimedOut      bool          `json:"timed_out"`
	CreatedAt     time.Time     `json:"created_at"`
}

type Score struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Points       int       `json:"points"`
	Rank         int       `json:"rank"`
	Accuracy     float64   `json:"accuracy"`
	Correct      int       `json:"correct"`
	RoundsPlayed int       `json:"rounds_played"`
	Seq          int64     `json:"seq"`
	JoinedAt     time.Time `json:"joined_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Caller is the authenticated identity behind a request or connection.
type Caller struct {
	UserID      string
	DisplayName string
}
