package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

type EventType string

const (
	EventSessionStarted  EventType = "session.started"
	EventRoundClosed     EventType = "round.closed"
	EventSessionFinished EventType = "session.finished"
)

// BaseEvent carries the fields every lifecycle event shares.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	RoomID    string    `json:"room_id"`
}

type SessionStartedEvent struct {
	BaseEvent
	HostID       string `json:"host_id"`
	TotalRounds  int    `json:"total_rounds"`
	Participants int    `json:"participants"`
}

type RoundClosedEvent struct {
	BaseEvent
	Round      int    `json:"round"`
	QuestionID string `json:"question_id"`
	Responded  int    `json:"responded"`
	Correct    int    `json:"correct"`
}

type SessionFinishedEvent struct {
	BaseEvent
	RoundsPlayed int                `json:"rounds_played"`
	Leaderboard  []motionquiz.Score `json:"leaderboard"`
}

func newBase(t EventType, s motionquiz.Session, now time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: now.Unix(),
		Version:   "1.0",
		SessionID: s.ID,
		RoomID:    s.RoomID,
	}
}
