package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/motionquiz/internal/evaluator"
	"github.com/playperu/motionquiz/internal/metrics"
	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/scoring"
	"github.com/playperu/motionquiz/internal/store"
)

const (
	inboxSize      = 64
	persistTimeout = 5 * time.Second
)

var errStopped = fmt.Errorf("session controller stopped: %w", motionquiz.ErrNotFound)

// Broadcaster fans a message out to every connection in a room. It must not
// block the caller.
type Broadcaster interface {
	Broadcast(roomID string, msg motionquiz.Message)
}

// Notifier receives lifecycle events for downstream consumers.
type Notifier interface {
	SessionStarted(s motionquiz.Session, participants int)
	RoundClosed(s motionquiz.Session, r motionquiz.Round, responses []motionquiz.Response)
	SessionFinished(s motionquiz.Session, leaderboard []motionquiz.Score)
}

type nopNotifier struct{}

func (nopNotifier) SessionStarted(motionquiz.Session, int) {}

func (nopNotifier) RoundClosed(motionquiz.Session, motionquiz.Round, []motionquiz.Response) {}

func (nopNotifier) SessionFinished(motionquiz.Session, []motionquiz.Score) {}

// Submission is one participant's answer as it reaches the controller.
type Submission struct {
	QuestionID    string
	Payload       motionquiz.Payload
	TimeToRespond time.Duration // client-measured; zero when unknown
}

// Outcome is what an accepted submission produced.
type Outcome struct {
	Response motionquiz.Response `json:"response"`
	Score    motionquiz.Score    `json:"score"`
}

// env is what every controller of a Manager shares.
type env struct {
	store      store.Store
	eval       *evaluator.Evaluator
	scorer     *scoring.Scorer
	bcast      Broadcaster
	notify     Notifier
	clock      Clock
	cfg        Config
	logger     *slog.Logger
	onFinished func(id string)
}

// Controller owns one session. All state below the inbox is touched only
// by the run goroutine; every public method is a message into the inbox.
type Controller struct {
	id     string
	roomID string
	hostID string

	inbox chan func()
	stop  chan struct{}
	done  chan struct{}

	env    *env
	logger *slog.Logger

	session   motionquiz.Session
	questions []motionquiz.Question
	round     *motionquiz.Round
	answers   map[string]motionquiz.Response // current round, by user
	scores    map[string]*motionquiz.Score
	seq       int64
	gen       uint64
	timer     Timer
}

func newController(e *env, s motionquiz.Session, questions []motionquiz.Question) *Controller {
	return &Controller{
		id:        s.ID,
		roomID:    s.RoomID,
		hostID:    s.HostID,
		inbox:     make(chan func(), inboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		env:       e,
		logger:    e.logger.With("session_id", s.ID, "room_id", s.RoomID),
		session:   s,
		questions: questions,
		answers:   make(map[string]motionquiz.Response),
		scores:    make(map[string]*motionquiz.Score),
	}
}

func (c *Controller) ID() string     { return c.id }
func (c *Controller) RoomID() string { return c.roomID }
func (c *Controller) HostID() string { return c.hostID }

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.stop:
			c.cancelTimer()
			close(c.done)
			return
		}
	}
}

// Stop ends the actor and waits for it to exit. Pending timers are dropped.
func (c *Controller) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

// do runs fn on the actor and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(finished) }:
	case <-c.done:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Queued work runs to completion; cancelling ctx now would hide a
	// result that is already recorded.
	select {
	case <-finished:
		return nil
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return errStopped
		}
	}
}

func call[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	if derr := c.do(ctx, func() { v, err = fn() }); derr != nil {
		var zero T
		return zero, derr
	}
	return v, err
}

// post enqueues fn from a timer goroutine.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// schedule replaces the pending timer. An expiry whose generation is no
// longer current is ignored when it reaches the inbox.
func (c *Controller) schedule(d time.Duration, fn func()) {
	c.cancelTimer()
	gen := c.gen
	c.timer = c.env.clock.AfterFunc(d, func() {
		c.post(func() {
			if gen != c.gen {
				return
			}
			c.timer = nil
			fn()
		})
	})
}

func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// Public operations.

func (c *Controller) Join(ctx context.Context, caller motionquiz.Caller) (motionquiz.Snapshot, error) {
	return call(ctx, c, func() (motionquiz.Snapshot, error) { return c.join(caller) })
}

func (c *Controller) Start(ctx context.Context, callerID string) error {
	_, err := call(ctx, c, func() (struct{}, error) { return struct{}{}, c.start(callerID) })
	return err
}

func (c *Controller) Advance(ctx context.Context, callerID string) error {
	_, err := call(ctx, c, func() (struct{}, error) { return struct{}{}, c.advance(callerID) })
	return err
}

func (c *Controller) End(ctx context.Context, callerID string) error {
	_, err := call(ctx, c, func() (struct{}, error) { return struct{}{}, c.end(callerID) })
	return err
}

func (c *Controller) Submit(ctx context.Context, userID string, sub Submission) (Outcome, error) {
	return call(ctx, c, func() (Outcome, error) { return c.submit(userID, sub) })
}

func (c *Controller) Snapshot(ctx context.Context) (motionquiz.Snapshot, error) {
	return call(ctx, c, func() (motionquiz.Snapshot, error) { return c.snapshot(), nil })
}

// Attach hands attach the current snapshot on the actor. Broadcasts are
// emitted from the actor too, so a connection registered inside attach
// sees every state change after that snapshot and none before it.
func (c *Controller) Attach(ctx context.Context, attach func(motionquiz.Snapshot)) error {
	return c.do(ctx, func() { attach(c.snapshot()) })
}

func (c *Controller) Leaderboard(ctx context.Context) ([]motionquiz.Score, error) {
	return call(ctx, c, func() ([]motionquiz.Score, error) { return c.leaderboard(), nil })
}

func (c *Controller) Status(ctx context.Context) (motionquiz.SessionStatus, error) {
	return call(ctx, c, func() (motionquiz.SessionStatus, error) { return c.session.Status, nil })
}

// IsParticipant reports whether userID has joined the session.
func (c *Controller) IsParticipant(ctx context.Context, userID string) (bool, error) {
	return call(ctx, c, func() (bool, error) {
		_, ok := c.scores[userID]
		return ok, nil
	})
}

// Actor-side handlers.

func (c *Controller) join(caller motionquiz.Caller) (motionquiz.Snapshot, error) {
	if c.session.Status == motionquiz.StatusFinished {
		return motionquiz.Snapshot{}, motionquiz.ErrInvalidState
	}
	name := caller.DisplayName
	if name == "" {
		name = caller.UserID
	}

	if sc, ok := c.scores[caller.UserID]; ok {
		if sc.DisplayName != name {
			sc.DisplayName = name
			c.persist("updating score", func(ctx context.Context) error {
				return c.env.store.UpdateScore(ctx, *sc)
			})
		}
		return c.snapshot(), nil
	}
	if c.session.Status != motionquiz.StatusWaiting && !c.session.Settings.AllowLateJoin {
		return motionquiz.Snapshot{}, motionquiz.ErrInvalidState
	}

	now := c.env.clock.Now()
	sc := &motionquiz.Score{
		SessionID:   c.id,
		UserID:      caller.UserID,
		DisplayName: name,
		Seq:         c.seq + 1,
		JoinedAt:    now,
		UpdatedAt:   now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.env.store.CreateScore(ctx, *sc); err != nil {
		return motionquiz.Snapshot{}, fmt.Errorf("creating score: %w", err)
	}
	c.seq++
	c.scores[caller.UserID] = sc
	c.logger.Info("participant joined", "user_id", caller.UserID)

	snap := c.snapshot()
	c.emit(motionquiz.MessageRoomUpdate, caller.UserID, snap)
	return snap, nil
}

func (c *Controller) start(callerID string) error {
	if callerID != c.hostID {
		return motionquiz.ErrUnauthorized
	}
	if c.session.Status != motionquiz.StatusWaiting {
		return motionquiz.ErrInvalidState
	}
	if len(c.scores) == 0 {
		return motionquiz.ErrNoPlayers
	}
	if len(c.questions) == 0 {
		return motionquiz.ErrNoQuestions
	}

	now := c.env.clock.Now()
	c.session.StartedAt = &now
	c.enterCountdown(motionquiz.MessageGameStart)
	c.env.notify.SessionStarted(c.session, len(c.scores))
	return nil
}

func (c *Controller) advance(callerID string) error {
	if callerID != c.hostID {
		return motionquiz.ErrUnauthorized
	}
	switch c.session.Status {
	case motionquiz.StatusCountdown:
		c.openRound()
	case motionquiz.StatusActive:
		c.closeRound()
	case motionquiz.StatusResults:
		c.next()
	default:
		return motionquiz.ErrInvalidState
	}
	return nil
}

func (c *Controller) end(callerID string) error {
	if callerID != c.hostID {
		return motionquiz.ErrUnauthorized
	}
	if c.session.Status == motionquiz.StatusFinished {
		return motionquiz.ErrInvalidState
	}
	c.finish()
	return nil
}

func (c *Controller) submit(userID string, sub Submission) (Outcome, error) {
	began := time.Now()
	r := c.round
	if c.session.Status != motionquiz.StatusActive || r == nil || r.Status != motionquiz.RoundActive {
		return Outcome{}, c.reject(motionquiz.ErrInvalidState)
	}
	if sub.QuestionID != r.QuestionID {
		return Outcome{}, c.reject(motionquiz.ErrStaleQuestion)
	}
	sc, ok := c.scores[userID]
	if !ok {
		return Outcome{}, c.reject(motionquiz.ErrNotParticipant)
	}
	if _, ok := c.answers[userID]; ok {
		return Outcome{}, c.reject(motionquiz.ErrDuplicateResponse)
	}

	now := c.env.clock.Now()
	elapsed := now.Sub(r.StartedAt)
	if elapsed > r.Duration {
		return Outcome{}, c.reject(motionquiz.ErrInvalidState)
	}
	ttr := sub.TimeToRespond
	if ttr <= 0 || ttr > elapsed {
		ttr = elapsed
	}

	q := c.question(r.QuestionID)
	res, err := c.env.eval.Evaluate(q, sub.Payload, ttr)
	if err != nil {
		return Outcome{}, c.reject(err)
	}
	resp := motionquiz.Response{
		ID:            uuid.NewString(),
		SessionID:     c.id,
		RoundID:       r.ID,
		QuestionID:    q.ID,
		UserID:        userID,
		Payload:       sub.Payload,
		IsCorrect:     res.IsCorrect,
		Accuracy:      res.Accuracy,
		Confidence:    res.Confidence,
		TimeToRespond: ttr,
		Points:        c.env.scorer.Points(q.Points, res.IsCorrect, c.session.Settings.SpeedBonus, ttr, r.Duration),
		CreatedAt:     now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.env.store.CreateResponse(ctx, resp); err != nil {
		if errors.Is(err, motionquiz.ErrDuplicateResponse) {
			return Outcome{}, c.reject(err)
		}
		return Outcome{}, fmt.Errorf("recording response: %w", err)
	}

	c.answers[userID] = resp
	c.seq++
	sc.Seq = c.seq
	scoring.Apply(sc, resp)
	c.persist("updating score", func(ctx context.Context) error {
		return c.env.store.UpdateScore(ctx, *sc)
	})

	result := "incorrect"
	if resp.IsCorrect {
		result = "correct"
	}
	metrics.Answers.WithLabelValues(string(q.Type), result).Inc()
	metrics.EvaluateDuration.WithLabelValues(string(q.Type)).Observe(time.Since(began).Seconds())

	c.emit(motionquiz.MessageAnswerSubmitted, userID, motionquiz.AnswerNotice{
		UserID:    userID,
		Round:     r.Number,
		Responded: c.responded(),
	})

	board := c.leaderboard()
	if c.session.Settings.AutoClose && len(c.answers) >= len(c.scores) {
		c.closeRound()
	} else {
		c.emit(motionquiz.MessageGameUpdate, "", c.snapshot())
	}

	for _, s := range board {
		if s.UserID == userID {
			return Outcome{Response: resp, Score: s}, nil
		}
	}
	return Outcome{Response: resp, Score: *sc}, nil
}

func (c *Controller) reject(err error) error {
	metrics.Answers.WithLabelValues("", motionquiz.Code(err)).Inc()
	return err
}

// Transitions.

func (c *Controller) enterCountdown(announce motionquiz.MessageType) {
	c.cancelTimer()
	c.session.CurrentRound++
	c.round = nil
	c.answers = make(map[string]motionquiz.Response)
	c.transition(motionquiz.StatusCountdown)
	c.emit(announce, "", c.snapshot())
	c.schedule(c.env.cfg.Countdown, c.openRound)
}

func (c *Controller) openRound() {
	c.cancelTimer()
	q := c.questions[c.session.CurrentRound-1]
	r := &motionquiz.Round{
		ID:         uuid.NewString(),
		SessionID:  c.id,
		Number:     c.session.CurrentRound,
		QuestionID: q.ID,
		Status:     motionquiz.RoundActive,
		StartedAt:  c.env.clock.Now(),
		Duration:   q.Limit(),
	}
	c.persist("creating round", func(ctx context.Context) error {
		return c.env.store.CreateRound(ctx, *r)
	})
	c.round = r
	c.answers = make(map[string]motionquiz.Response)
	c.transition(motionquiz.StatusActive)
	c.emit(motionquiz.MessageQuestionStart, "", c.snapshot())
	c.schedule(r.Duration, c.closeRound)
}

func (c *Controller) closeRound() {
	c.cancelTimer()
	c.sealRound()
	c.transition(motionquiz.StatusResults)
	c.emit(motionquiz.MessageGameUpdate, "", c.snapshot())
	c.schedule(c.env.cfg.ResultsInterval, c.next)
}

func (c *Controller) next() {
	if c.session.CurrentRound < c.session.TotalRounds {
		c.enterCountdown(motionquiz.MessageGameUpdate)
		return
	}
	c.finish()
}

func (c *Controller) finish() {
	c.cancelTimer()
	c.sealRound()
	now := c.env.clock.Now()
	c.session.EndedAt = &now
	c.transition(motionquiz.StatusFinished)

	board := c.leaderboard()
	c.persistScores()
	c.emit(motionquiz.MessageGameEnd, "", c.snapshot())
	c.env.notify.SessionFinished(c.session, board)
	c.logger.Info("session finished", "rounds", c.session.CurrentRound, "participants", len(c.scores))

	if c.env.onFinished != nil {
		c.env.onFinished(c.id)
	}
}

// sealRound closes the open round, recording a timed-out zero response for
// every participant who was present when it opened and never answered.
func (c *Controller) sealRound() {
	r := c.round
	if r == nil || r.Status == motionquiz.RoundSealed {
		return
	}
	now := c.env.clock.Now()
	r.Status = motionquiz.RoundSealed
	r.SealedAt = &now

	for _, uid := range slices.Sorted(maps.Keys(c.scores)) {
		sc := c.scores[uid]
		if _, ok := c.answers[uid]; ok || sc.JoinedAt.After(r.StartedAt) {
			continue
		}
		resp := motionquiz.Response{
			ID:            uuid.NewString(),
			SessionID:     c.id,
			RoundID:       r.ID,
			QuestionID:    r.QuestionID,
			UserID:        uid,
			TimeToRespond: r.Duration,
			TimedOut:      true,
			CreatedAt:     now,
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := c.env.store.CreateResponse(ctx, resp)
		cancel()
		if err != nil {
			c.logger.Error("recording timeout", "user_id", uid, "error", err)
			continue
		}
		c.answers[uid] = resp
		scoring.Apply(sc, resp)
	}

	c.persist("sealing round", func(ctx context.Context) error {
		return c.env.store.UpdateRound(ctx, *r)
	})
	c.leaderboard()
	c.persistScores()
	c.env.notify.RoundClosed(c.session, *r, slices.Collect(maps.Values(c.answers)))
}

func (c *Controller) transition(to motionquiz.SessionStatus) {
	from := c.session.Status
	c.session.Status = to
	c.persist("updating session", func(ctx context.Context) error {
		return c.env.store.UpdateSession(ctx, c.session)
	})
	metrics.Transitions.WithLabelValues(string(to)).Inc()
	c.logger.Debug("session transition", "from", from, "to", to, "round", c.session.CurrentRound)
}

// resume picks a restored session back up. Countdown restarts its timer,
// an interrupted round is sealed and the session continues from results.
func (c *Controller) resume() {
	switch c.session.Status {
	case motionquiz.StatusCountdown:
		c.round = nil
		c.schedule(c.env.cfg.Countdown, c.openRound)
	case motionquiz.StatusActive:
		if c.round == nil {
			c.session.Status = motionquiz.StatusCountdown
			c.schedule(c.env.cfg.Countdown, c.openRound)
			return
		}
		c.closeRound()
	case motionquiz.StatusResults:
		c.schedule(c.env.cfg.ResultsInterval, c.next)
	case motionquiz.StatusFinished:
		if c.env.onFinished != nil {
			c.env.onFinished(c.id)
		}
	}
}

// Views.

func (c *Controller) snapshot() motionquiz.Snapshot {
	s := motionquiz.Snapshot{
		Session:      c.session,
		Responded:    c.responded(),
		Participants: len(c.scores),
		Leaderboard:  c.leaderboard(),
	}
	if c.round != nil {
		r := *c.round
		s.Round = &r
		q := c.question(r.QuestionID).Public()
		s.Question = &q
		if r.Status == motionquiz.RoundActive {
			d := r.Deadline()
			s.Deadline = &d
		}
	}
	return s
}

// leaderboard ranks every score and writes the ranks back.
func (c *Controller) leaderboard() []motionquiz.Score {
	board := make([]motionquiz.Score, 0, len(c.scores))
	for _, sc := range c.scores {
		board = append(board, *sc)
	}
	scoring.Rank(board)
	for _, s := range board {
		c.scores[s.UserID].Rank = s.Rank
	}
	return board
}

func (c *Controller) responded() int {
	n := 0
	for _, a := range c.answers {
		if !a.TimedOut {
			n++
		}
	}
	return n
}

func (c *Controller) question(id string) motionquiz.Question {
	for _, q := range c.questions {
		if q.ID == id {
			return q
		}
	}
	return motionquiz.Question{}
}

// Side effects.

func (c *Controller) emit(t motionquiz.MessageType, userID string, data any) {
	msg, err := motionquiz.NewMessage(t, c.roomID, userID, data, c.env.clock.Now())
	if err != nil {
		c.logger.Error("encoding message", "type", t, "error", err)
		return
	}
	c.env.bcast.Broadcast(c.roomID, msg)
}

// persist runs a store write. Failures are logged; in-memory state stays
// authoritative for the running session.
func (c *Controller) persist(what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.logger.Error(what, "error", err)
	}
}

func (c *Controller) persistScores() {
	for _, sc := range c.scores {
		c.persist("updating score", func(ctx context.Context) error {
			return c.env.store.UpdateScore(ctx, *sc)
		})
	}
}
