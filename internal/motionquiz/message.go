package motionquiz

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageRoomUpdate      MessageType = "room_update"
	MessagePlayerJoined    MessageType = "player_joined"
	MessagePlayerLeft      MessageType = "player_left"
	MessageGameStart       MessageType = "game_start"
	MessageGameUpdate      MessageType = "game_update"
	MessageQuestionStart   MessageType = "question_start"
	MessageAnswerSubmitted MessageType = "answer_submitted"
	MessageGameEnd         MessageType = "game_end"

	// MessageSensorData is inbound only: raw sensor samples streamed by a
	// client between answers.
	MessageSensorData MessageType = "sensor_data"
)

// Message is the realtime envelope exchanged in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RoomID    string          `json:"room_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}

// NewMessage encodes data into an envelope stamped with now.
func NewMessage(t MessageType, roomID, userID string, data any, now time.Time) (Message, error) {
	m := Message{
		Type:      t,
		Timestamp: now.UnixMilli(),
		RoomID:    roomID,
		UserID:    userID,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		m.Data = raw
	}
	return m, nil
}

// Snapshot is the full session view carried by room_update, game_update,
// question_start and game_end so reconnecting clients need no catch-up.
type Snapshot struct {
	Session      Session    `json:"session"`
	Question     *Question  `json:"question,omitempty"`
	Round        *Round     `json:"round,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Responded    int        `json:"responded"`
	Participants int        `json:"participants"`
	Leaderboard  []Score    `json:"leaderboard"`
}

type PresenceEvent struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Online      int    `json:"online"`
}

// AnswerNotice is broadcast to the room when someone answers. It carries no
// correctness so other players learn nothing about the answer key.
type AnswerNotice struct {
	UserID    string `json:"user_id"`
	Round     int    `json:"round"`
	Responded int    `json:"responded"`
}

// AnswerResult is sent only to the submitter.
type AnswerResult struct {
	Accepted   bool      `json:"accepted"`
	Code       string    `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Response   *Response `json:"response,omitempty"`
	TotalScore int       `json:"total_score,omitempty"`
	Rank       int       `json:"rank,omitempty"`
}

// AnswerSubmission is the inbound answer_submitted payload.
type AnswerSubmission struct {
	QuestionID      string  `json:"question_id"`
	Payload         Payload `json:"payload"`
	TimeToRespondMS int64   `json:"time_to_respond_ms"`
}

// SensorSample is the inbound sensor_data payload.
type SensorSample struct {
	Orientation    *Orientation  `json:"orientation,omitempty"`
	Voice          *VoiceInput   `json:"voice,omitempty"`
	Gesture        *GestureInput `json:"gesture,omitempty"`
	Touch          *TouchInput   `json:"touch,omitempty"`
	ScreenRotation int           `json:"screen_rotation"`
	ViewportWidth  float64       `json:"viewport_width,omitempty"`
	ViewportHeight float64       `json:"viewport_height,omitempty"`
}
