package motionquiz

import "errors"

var (
	ErrUnauthorized            = errors.New("not your turn to control the game")
	ErrInvalidState            = errors.New("action not valid in the current game state")
	ErrDuplicateResponse       = errors.New("you already answered")
	ErrStaleQuestion           = errors.New("question changed")
	ErrUnsupportedQuestionType = errors.New("unsupported question type")
	ErrNoPlayers               = errors.New("no players have joined")
	ErrNoQuestions             = errors.New("session has no questions")
	ErrConnectionLost          = errors.New("connection lost")
	ErrNotFound                = errors.New("not found")
	ErrNotParticipant          = errors.New("not a participant in this session")
)

// Code returns the reason code the UI layer renders for err, or "internal"
// when err is not part of the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrDuplicateResponse):
		return "duplicate_response"
	case errors.Is(err, ErrStaleQuestion):
		return "stale_question"
	case errors.Is(err, ErrUnsupportedQuestionType):
		return "unsupported_question_type"
	case errors.Is(err, ErrNoPlayers):
		return "no_players"
	case errors.Is(err, ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	}
	return "internal"
}
