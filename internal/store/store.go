// Package store is the persistence boundary of the session engine. The
// controller owns all writes for a session; implementations only need to be
// safe for concurrent use across sessions.
package store

import (
	"context"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// Store persists sessions and everything hanging off them. Getters return
// motionquiz.ErrNotFound for unknown ids; CreateResponse returns
// motionquiz.ErrDuplicateResponse when the user already answered the round.
type Store interface {
	CreateSession(ctx context.Context, s motionquiz.Session, questions []motionquiz.Question) error
	GetSession(ctx context.Context, id string) (motionquiz.Session, error)
	UpdateSession(ctx context.Context, s motionquiz.Session) error
	ListQuestions(ctx context.Context, sessionID string) ([]motionquiz.Question, error)

	CreateRound(ctx context.Context, r motionquiz.Round) error
	GetRound(ctx context.Context, id string) (motionquiz.Round, error)
	UpdateRound(ctx context.Context, r motionquiz.Round) error
	ListRounds(ctx context.Context, sessionID string) ([]motionquiz.Round, error)

	CreateResponse(ctx context.Context, r motionquiz.Response) error
	ListResponses(ctx context.Context, sessionID string) ([]motionquiz.Response, error)

	CreateScore(ctx context.Context, sc motionquiz.Score) error
	UpdateScore(ctx context.Context, sc motionquiz.Score) error
	ListScores(ctx context.Context, sessionID string) ([]motionquiz.Score, error)
}
