// Package session drives quiz sessions through their lifecycle. Each live
// session is an actor goroutine; the Manager is the registry that creates,
// restores and evicts them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/motionquiz/internal/evaluator"
	"github.com/playperu/motionquiz/internal/metrics"
	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/scoring"
	"github.com/playperu/motionquiz/internal/store"
)

const defaultPoints = 100

type Config struct {
	Countdown         time.Duration
	ResultsInterval   time.Duration
	FinishedRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Countdown:         3 * time.Second,
		ResultsInterval:   5 * time.Second,
		FinishedRetention: 10 * time.Minute,
	}
}

type Option func(*env)

func WithClock(c Clock) Option { return func(e *env) { e.clock = c } }

func WithNotifier(n Notifier) Option { return func(e *env) { e.notify = n } }

// CreateRequest is what a host sends to open a session. Questions arrive
// fully authored; ids, positions and defaults are filled in here.
type CreateRequest struct {
	RoomID    string                `json:"room_id"`
	Settings  *motionquiz.Settings  `json:"settings,omitempty"`
	Questions []motionquiz.Question `json:"questions"`
}

type Manager struct {
	env *env

	// createMu serializes the room check with the insert in Create.
	createMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*Controller
	rooms    map[string]string // room id -> session id
}

func NewManager(st store.Store, eval *evaluator.Evaluator, scorer *scoring.Scorer, b Broadcaster, logger *slog.Logger, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.Countdown <= 0 {
		cfg.Countdown = def.Countdown
	}
	if cfg.ResultsInterval <= 0 {
		cfg.ResultsInterval = def.ResultsInterval
	}
	if cfg.FinishedRetention <= 0 {
		cfg.FinishedRetention = def.FinishedRetention
	}

	m := &Manager{
		sessions: make(map[string]*Controller),
		rooms:    make(map[string]string),
	}
	m.env = &env{
		store:  st,
		eval:   eval,
		scorer: scorer,
		bcast:  b,
		notify: nopNotifier{},
		clock:  systemClock{},
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m.env)
	}
	m.env.onFinished = m.retire
	return m
}

// Create opens a new session hosted by host. A room holds at most one
// unfinished session.
func (m *Manager) Create(ctx context.Context, host motionquiz.Caller, req CreateRequest) (motionquiz.Snapshot, error) {
	settings := motionquiz.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
		if settings.TimePerQuestion <= 0 {
			settings.TimePerQuestion = motionquiz.DefaultSettings().TimePerQuestion
		}
	}

	id := uuid.NewString()
	roomID := req.RoomID
	if roomID == "" {
		roomID = id
	}

	questions := make([]motionquiz.Question, len(req.Questions))
	for i, q := range req.Questions {
		q.ID = uuid.NewString()
		q.SessionID = id
		q.Position = i + 1
		if q.Points == 0 {
			q.Points = defaultPoints
		}
		if q.TimeLimit == 0 {
			q.TimeLimit = settings.TimePerQuestion
		}
		if err := q.Validate(); err != nil {
			return motionquiz.Snapshot{}, err
		}
		if q.Type == motionquiz.QuestionMultiModal && !settings.MultiModal {
			return motionquiz.Snapshot{}, fmt.Errorf("question %d: multi-modal questions are disabled: %w", q.Position, motionquiz.ErrUnsupportedQuestionType)
		}
		questions[i] = q
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if existing, ok := m.byRoom(roomID); ok {
		status, err := existing.Status(ctx)
		if err == nil && status != motionquiz.StatusFinished {
			return motionquiz.Snapshot{}, fmt.Errorf("room %q already hosts session %s: %w", roomID, existing.ID(), motionquiz.ErrInvalidState)
		}
	}

	s := motionquiz.Session{
		ID:          id,
		RoomID:      roomID,
		HostID:      host.UserID,
		Status:      motionquiz.StatusWaiting,
		TotalRounds: len(questions),
		Settings:    settings,
		CreatedAt:   m.env.clock.Now(),
	}
	if err := m.env.store.CreateSession(ctx, s, questions); err != nil {
		return motionquiz.Snapshot{}, fmt.Errorf("creating session: %w", err)
	}

	c := newController(m.env, s, questions)
	go c.run()

	m.mu.Lock()
	m.sessions[id] = c
	m.rooms[roomID] = id
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.env.logger.Info("session created", "session_id", id, "room_id", roomID, "host_id", host.UserID, "questions", len(questions))
	return c.Snapshot(ctx)
}

// Get returns the resident controller for id, restoring it from the store
// when it is not in memory.
func (m *Manager) Get(ctx context.Context, id string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if c, ok := m.sessions[id]; ok {
		return c, nil
	}

	c, err := m.restore(ctx, id)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = c
	if _, ok := m.rooms[c.roomID]; !ok {
		m.rooms[c.roomID] = id
	}
	metrics.ActiveSessions.Inc()
	return c, nil
}

// ByRoom returns the resident session most recently opened in roomID.
func (m *Manager) ByRoom(roomID string) (*Controller, error) {
	c, ok := m.byRoom(roomID)
	if !ok {
		return nil, motionquiz.ErrNotFound
	}
	return c, nil
}

func (m *Manager) byRoom(roomID string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	c, ok := m.sessions[id]
	return c, ok
}

func (m *Manager) restore(ctx context.Context, id string) (*Controller, error) {
	s, err := m.env.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	questions, err := m.env.store.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	rounds, err := m.env.store.ListRounds(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading rounds: %w", err)
	}
	responses, err := m.env.store.ListResponses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading responses: %w", err)
	}
	scores, err := m.env.store.ListScores(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading scores: %w", err)
	}

	c := newController(m.env, s, questions)
	for i := range scores {
		sc := scores[i]
		c.scores[sc.UserID] = &sc
		c.seq = max(c.seq, sc.Seq)
	}
	if n := len(rounds); n > 0 && rounds[n-1].Number == s.CurrentRound {
		r := rounds[n-1]
		c.round = &r
		for _, resp := range responses {
			if resp.RoundID == r.ID {
				c.answers[resp.UserID] = resp
			}
		}
	}

	c.resume()
	go c.run()
	m.env.logger.Info("session restored", "session_id", id, "status", c.session.Status)
	return c, nil
}

// retire schedules eviction of a finished session. The store keeps it.
func (m *Manager) retire(id string) {
	m.env.clock.AfterFunc(m.env.cfg.FinishedRetention, func() { m.evict(id) })
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	c, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.rooms[c.roomID] == id {
			delete(m.rooms, c.roomID)
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	c.Stop()
	metrics.ActiveSessions.Dec()
	m.env.logger.Info("session evicted", "session_id", id)
}

// Close stops every resident controller.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.sessions {
		c.Stop()
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	clear(m.rooms)
}

// Pass-throughs used by the HTTP and WebSocket surfaces.

func (m *Manager) Join(ctx context.Context, id string, caller motionquiz.Caller) (motionquiz.Snapshot, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return motionquiz.Snapshot{}, err
	}
	return c.Join(ctx, caller)
}

func (m *Manager) Start(ctx context.Context, id, callerID string) error {
	c, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.Start(ctx, callerID)
}

func (m *Manager) Advance(ctx context.Context, id, callerID string) error {
	c, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.Advance(ctx, callerID)
}

func (m *Manager) End(ctx context.Context, id, callerID string) error {
	c, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.End(ctx, callerID)
}

func (m *Manager) Submit(ctx context.Context, id, userID string, sub Submission) (Outcome, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	return c.Submit(ctx, userID, sub)
}

func (m *Manager) Snapshot(ctx context.Context, id string) (motionquiz.Snapshot, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return motionquiz.Snapshot{}, err
	}
	return c.Snapshot(ctx)
}

func (m *Manager) Leaderboard(ctx context.Context, id string) ([]motionquiz.Score, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Leaderboard(ctx)
}

// RoundDetail is one round as archived in the store. Responses are listed
// only once the round is sealed, so an open round never reveals answers.
type RoundDetail struct {
	Round     motionquiz.Round      `json:"round"`
	Responses []motionquiz.Response `json:"responses"`
}

// Round reads a round of session id straight from the store.
func (m *Manager) Round(ctx context.Context, id, roundID string) (RoundDetail, error) {
	r, err := m.env.store.GetRound(ctx, roundID)
	if err != nil {
		return RoundDetail{}, fmt.Errorf("loading round %s: %w", roundID, err)
	}
	if r.SessionID != id {
		return RoundDetail{}, fmt.Errorf("round %s in session %s: %w", roundID, id, motionquiz.ErrNotFound)
	}

	detail := RoundDetail{Round: r, Responses: []motionquiz.Response{}}
	if r.Status != motionquiz.RoundSealed {
		return detail, nil
	}
	responses, err := m.env.store.ListResponses(ctx, id)
	if err != nil {
		return RoundDetail{}, fmt.Errorf("loading responses: %w", err)
	}
	for _, resp := range responses {
		if resp.RoundID == roundID {
			detail.Responses = append(detail.Responses, resp)
		}
	}
	slices.SortFunc(detail.Responses, func(a, b motionquiz.Response) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return detail, nil
}
