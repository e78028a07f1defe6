package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/playperu/motionquiz/internal/evaluator"
	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/scoring"
	"github.com/playperu/motionquiz/internal/store"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clk     *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(due, func(a, b *fakeTimer) int { return a.at.Compare(b.at) })
	for _, t := range due {
		t.f()
	}
}

// fireStopped runs callbacks of timers that were cancelled, as if each had
// expired just before its Stop.
func (c *fakeClock) fireStopped() {
	c.mu.Lock()
	var stale []*fakeTimer
	for _, t := range c.timers {
		if t.stopped && !t.fired {
			t.fired = true
			stale = append(stale, t)
		}
	}
	c.mu.Unlock()
	for _, t := range stale {
		t.f()
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []motionquiz.Message
}

func (r *recorder) Broadcast(_ string, msg motionquiz.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []motionquiz.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func (r *recorder) count(t motionquiz.MessageType) int {
	n := 0
	for _, m := range r.messages() {
		if m.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clk   *fakeClock
	rec   *recorder
	store *store.Memory
	mgr   *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clk:   newFakeClock(),
		rec:   &recorder{},
		store: store.NewMemory(),
	}
	h.mgr = h.manager()
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) manager() *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(h.store, evaluator.New(evaluator.DefaultConfig()), scoring.New(nil), h.rec, logger, DefaultConfig(), WithClock(h.clk))
}

var (
	host  = motionquiz.Caller{UserID: "host", DisplayName: "Host"}
	alice = motionquiz.Caller{UserID: "alice", DisplayName: "Alice"}
	bob   = motionquiz.Caller{UserID: "bob", DisplayName: "Bob"}
)

func tiltQuestion() motionquiz.Question {
	return motionquiz.Question{
		Type:   motionquiz.QuestionOrientation,
		Prompt: "Tilt your phone forward",
		Target: motionquiz.Target{Orientation: &motionquiz.Orientation{Beta: 45}},
	}
}

func voiceQuestion() motionquiz.Question {
	return motionquiz.Question{
		Type:   motionquiz.QuestionVoice,
		Prompt: "Say hello world",
		Target: motionquiz.Target{Phrase: "hello world"},
	}
}

// create opens a session and joins the given players.
func (h *harness) create(settings *motionquiz.Settings, questions []motionquiz.Question, players ...motionquiz.Caller) *Controller {
	h.t.Helper()
	snap, err := h.mgr.Create(h.ctx, host, CreateRequest{RoomID: "room-1", Settings: settings, Questions: questions})
	if err != nil {
		h.t.Fatalf("create: %v", err)
	}
	c, err := h.mgr.Get(h.ctx, snap.Session.ID)
	if err != nil {
		h.t.Fatalf("get: %v", err)
	}
	for _, p := range players {
		if _, err := c.Join(h.ctx, p); err != nil {
			h.t.Fatalf("join %s: %v", p.UserID, err)
		}
	}
	return c
}

// step advances the clock and waits for the controller to drain any timer
// expiry that fired.
func (h *harness) step(c *Controller, d time.Duration) motionquiz.Snapshot {
	h.t.Helper()
	h.clk.Advance(d)
	snap, err := c.Snapshot(h.ctx)
	if err != nil {
		h.t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func (h *harness) snapshot(c *Controller) motionquiz.Snapshot {
	return h.step(c, 0)
}

func (h *harness) answer(c *Controller, who motionquiz.Caller, p motionquiz.Payload) (Outcome, error) {
	h.t.Helper()
	snap := h.snapshot(c)
	if snap.Question == nil {
		h.t.Fatalf("no open question (status %s)", snap.Session.Status)
	}
	return c.Submit(h.ctx, who.UserID, Submission{QuestionID: snap.Question.ID, Payload: p})
}

var (
	tilt  = motionquiz.Payload{Orientation: &motionquiz.Orientation{Beta: 45}}
	hello = motionquiz.Payload{Voice: &motionquiz.VoiceInput{Transcript: "Hello world", Confidence: 0.9}}
)

func TestFullSessionTwoPlayers(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion(), voiceQuestion()}, alice, bob)

	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := h.snapshot(c)
	if snap.Session.Status != motionquiz.StatusCountdown || snap.Session.CurrentRound != 1 {
		t.Fatalf("after start: status %s round %d", snap.Session.Status, snap.Session.CurrentRound)
	}

	snap = h.step(c, 3*time.Second)
	if snap.Session.Status != motionquiz.StatusActive || snap.Deadline == nil {
		t.Fatalf("after countdown: status %s", snap.Session.Status)
	}

	h.step(c, 5*time.Second)
	out, err := h.answer(c, alice, tilt)
	if err != nil {
		t.Fatalf("alice round 1: %v", err)
	}
	if !out.Response.IsCorrect || out.Response.Points != 150 || out.Score.Rank != 1 {
		t.Errorf("alice round 1 outcome = %+v", out)
	}

	h.step(c, 3*time.Second)
	out, err = h.answer(c, bob, tilt)
	if err != nil {
		t.Fatalf("bob round 1: %v", err)
	}
	if out.Response.Points != 150 || out.Score.Rank != 2 {
		t.Errorf("bob round 1: points %d rank %d, want 150 and 2", out.Response.Points, out.Score.Rank)
	}

	snap = h.snapshot(c)
	if snap.Session.Status != motionquiz.StatusResults {
		t.Fatalf("everyone answered, status = %s, want results", snap.Session.Status)
	}

	snap = h.step(c, 5*time.Second)
	if snap.Session.Status != motionquiz.StatusCountdown || snap.Session.CurrentRound != 2 {
		t.Fatalf("after results: status %s round %d", snap.Session.Status, snap.Session.CurrentRound)
	}
	h.step(c, 3*time.Second)

	h.step(c, 2*time.Second)
	if _, err := h.answer(c, alice, hello); err != nil {
		t.Fatalf("alice round 2: %v", err)
	}
	h.step(c, 2*time.Second)
	if _, err := h.answer(c, bob, hello); err != nil {
		t.Fatalf("bob round 2: %v", err)
	}

	snap = h.step(c, 5*time.Second)
	if snap.Session.Status != motionquiz.StatusFinished || snap.Session.EndedAt == nil {
		t.Fatalf("final status = %s", snap.Session.Status)
	}
	if snap.Session.CurrentRound != snap.Session.TotalRounds {
		t.Errorf("current round %d != total %d", snap.Session.CurrentRound, snap.Session.TotalRounds)
	}

	board := snap.Leaderboard
	if len(board) != 2 {
		t.Fatalf("leaderboard = %+v", board)
	}
	if board[0].UserID != "alice" || board[0].Rank != 1 || board[0].Points != 300 {
		t.Errorf("first = %+v", board[0])
	}
	if board[1].UserID != "bob" || board[1].Rank != 2 || board[1].Points != 300 {
		t.Errorf("second = %+v", board[1])
	}
	if board[0].Accuracy != 100 || board[0].RoundsPlayed != 2 {
		t.Errorf("alice accuracy %.1f over %d rounds", board[0].Accuracy, board[0].RoundsPlayed)
	}

	for _, typ := range []motionquiz.MessageType{
		motionquiz.MessageGameStart,
		motionquiz.MessageQuestionStart,
		motionquiz.MessageAnswerSubmitted,
		motionquiz.MessageGameUpdate,
		motionquiz.MessageGameEnd,
	} {
		if h.rec.count(typ) == 0 {
			t.Errorf("no %s broadcast", typ)
		}
	}
	if n := h.rec.count(motionquiz.MessageQuestionStart); n != 2 {
		t.Errorf("question_start broadcasts = %d, want 2", n)
	}
}

func TestCurrentRoundNeverDecreases(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion(), voiceQuestion(), tiltQuestion()}, alice)

	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	for range 20 {
		h.step(c, 4*time.Second)
		if err := c.Advance(h.ctx, host.UserID); err != nil && !errors.Is(err, motionquiz.ErrInvalidState) {
			t.Fatalf("advance: %v", err)
		}
	}

	last := 0
	for _, m := range h.rec.messages() {
		if m.Type == motionquiz.MessageAnswerSubmitted || m.Type == motionquiz.MessageRoomUpdate {
			continue
		}
		var snap motionquiz.Snapshot
		if err := json.Unmarshal(m.Data, &snap); err != nil {
			t.Fatalf("decoding %s: %v", m.Type, err)
		}
		if snap.Session.CurrentRound < last {
			t.Fatalf("%s carried round %d after %d", m.Type, snap.Session.CurrentRound, last)
		}
		last = snap.Session.CurrentRound
	}
	if last != 3 {
		t.Errorf("last round = %d, want 3", last)
	}
	if s := h.snapshot(c); s.Session.Status != motionquiz.StatusFinished {
		t.Errorf("status = %s, want finished", s.Session.Status)
	}
}

func TestStartPreconditions(t *testing.T) {
	h := newHarness(t)

	empty := h.create(nil, nil)
	if err := empty.Start(h.ctx, host.UserID); !errors.Is(err, motionquiz.ErrNoPlayers) {
		t.Errorf("no players: err = %v", err)
	}
	if _, err := empty.Join(h.ctx, alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := empty.Start(h.ctx, host.UserID); !errors.Is(err, motionquiz.ErrNoQuestions) {
		t.Errorf("no questions: err = %v", err)
	}
	if err := empty.End(h.ctx, host.UserID); err != nil {
		t.Fatalf("end: %v", err)
	}

	h2 := newHarness(t)
	c := h2.create(nil, []motionquiz.Question{tiltQuestion()}, alice)
	if err := c.Start(h2.ctx, alice.UserID); !errors.Is(err, motionquiz.ErrUnauthorized) {
		t.Errorf("non-host start: err = %v", err)
	}
	if err := c.Advance(h2.ctx, host.UserID); !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("advance while waiting: err = %v", err)
	}
	if err := c.Start(h2.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(h2.ctx, host.UserID); !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("second start: err = %v", err)
	}
}

func TestSubmitRejections(t *testing.T) {
	h := newHarness(t)
	manual := motionquiz.DefaultSettings()
	manual.AutoClose = false
	c := h.create(&manual, []motionquiz.Question{tiltQuestion()}, alice, bob)

	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := c.Submit(h.ctx, alice.UserID, Submission{QuestionID: "whatever", Payload: tilt})
	if !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("during countdown: err = %v", err)
	}

	snap := h.step(c, 3*time.Second)
	qid := snap.Question.ID

	tests := []struct {
		name string
		user string
		qid  string
		want error
	}{
		{"stale question", alice.UserID, "old-question", motionquiz.ErrStaleQuestion},
		{"not a participant", "mallory", qid, motionquiz.ErrNotParticipant},
		{"first answer", alice.UserID, qid, nil},
		{"duplicate", alice.UserID, qid, motionquiz.ErrDuplicateResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Submit(h.ctx, tt.user, Submission{QuestionID: tt.qid, Payload: tilt})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// The round stays open: bob has not answered and auto-close is off.
	if s := h.snapshot(c); s.Session.Status != motionquiz.StatusActive || s.Responded != 1 {
		t.Errorf("status %s responded %d", s.Session.Status, s.Responded)
	}

	responses, _ := h.store.ListResponses(h.ctx, c.ID())
	if len(responses) != 1 {
		t.Errorf("stored responses = %d, want 1", len(responses))
	}

	// A rejected duplicate leaves alice's score untouched.
	before := scoreOf(t, h.leaderboard(c), alice.UserID)
	h.clk.Advance(time.Second)
	if _, err := c.Submit(h.ctx, alice.UserID, Submission{QuestionID: qid, Payload: tilt}); !errors.Is(err, motionquiz.ErrDuplicateResponse) {
		t.Fatalf("duplicate: err = %v", err)
	}
	after := scoreOf(t, h.leaderboard(c), alice.UserID)
	if after.Points != before.Points || after.RoundsPlayed != before.RoundsPlayed ||
		after.Correct != before.Correct || after.Seq != before.Seq || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("score changed by duplicate: before %+v after %+v", before, after)
	}
}

func (h *harness) leaderboard(c *Controller) []motionquiz.Score {
	h.t.Helper()
	board, err := c.Leaderboard(h.ctx)
	if err != nil {
		h.t.Fatalf("leaderboard: %v", err)
	}
	return board
}

func scoreOf(t *testing.T, board []motionquiz.Score, userID string) motionquiz.Score {
	t.Helper()
	for _, s := range board {
		if s.UserID == userID {
			return s
		}
	}
	t.Fatalf("%s missing from leaderboard", userID)
	return motionquiz.Score{}
}

func TestRoundTimeoutRecordsZeroResponses(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion(), voiceQuestion()}, alice, bob)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.step(c, 3*time.Second)
	h.step(c, 25*time.Second)
	if _, err := h.answer(c, alice, tilt); err != nil {
		t.Fatalf("alice: %v", err)
	}

	snap := h.step(c, 10*time.Second)
	if snap.Session.Status != motionquiz.StatusResults {
		t.Fatalf("status after deadline = %s", snap.Session.Status)
	}
	if snap.Round == nil || snap.Round.Status != motionquiz.RoundSealed {
		t.Fatalf("round not sealed: %+v", snap.Round)
	}

	var bobScore motionquiz.Score
	for _, s := range snap.Leaderboard {
		if s.UserID == "bob" {
			bobScore = s
		}
	}
	if bobScore.RoundsPlayed != 1 || bobScore.Points != 0 || bobScore.Rank != 2 {
		t.Errorf("bob = %+v", bobScore)
	}

	responses, _ := h.store.ListResponses(h.ctx, c.ID())
	var timedOut int
	for _, r := range responses {
		if r.TimedOut {
			timedOut++
			if r.UserID != "bob" || r.Points != 0 {
				t.Errorf("timed-out response = %+v", r)
			}
		}
	}
	if timedOut != 1 {
		t.Errorf("timed-out responses = %d, want 1", timedOut)
	}

	// Alice answered at 25s of 30: no bonus.
	if snap.Leaderboard[0].UserID != "alice" || snap.Leaderboard[0].Points != 100 {
		t.Errorf("leader = %+v", snap.Leaderboard[0])
	}
}

func TestStaleTimerIsNoop(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion(), voiceQuestion()}, alice)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Skip the countdown; the countdown timer is now stale.
	if err := c.Advance(h.ctx, host.UserID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	before := h.snapshot(c)
	if before.Session.Status != motionquiz.StatusActive {
		t.Fatalf("status = %s", before.Session.Status)
	}

	h.clk.fireStopped()
	after := h.snapshot(c)

	if after.Session.Status != motionquiz.StatusActive || after.Round.ID != before.Round.ID {
		t.Errorf("stale countdown expiry changed state: %s round %s -> %s", after.Session.Status, before.Round.ID, after.Round.ID)
	}
	if n := h.rec.count(motionquiz.MessageQuestionStart); n != 1 {
		t.Errorf("question_start broadcasts = %d, want 1", n)
	}
}

func TestEndCancelsTimers(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion()}, alice)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.step(c, 3*time.Second)

	if err := c.End(h.ctx, alice.UserID); !errors.Is(err, motionquiz.ErrUnauthorized) {
		t.Errorf("non-host end: err = %v", err)
	}
	if err := c.End(h.ctx, host.UserID); err != nil {
		t.Fatalf("end: %v", err)
	}
	sent := len(h.rec.messages())

	snap := h.step(c, time.Minute)
	if snap.Session.Status != motionquiz.StatusFinished {
		t.Fatalf("status = %s", snap.Session.Status)
	}
	if got := len(h.rec.messages()); got != sent {
		t.Errorf("%d messages after end", got-sent)
	}
	if err := c.End(h.ctx, host.UserID); !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("second end: err = %v", err)
	}
	if _, err := c.Join(h.ctx, bob); !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("join after end: err = %v", err)
	}
}

func TestTimeToRespondPolicy(t *testing.T) {
	tests := []struct {
		name   string
		client time.Duration
		want   time.Duration
	}{
		{"client value within elapsed", 2 * time.Second, 2 * time.Second},
		{"missing client value", 0, 12 * time.Second},
		{"client claims more than elapsed", time.Hour, 12 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.create(nil, []motionquiz.Question{tiltQuestion()}, alice)
			if err := c.Start(h.ctx, host.UserID); err != nil {
				t.Fatalf("start: %v", err)
			}
			snap := h.step(c, 3*time.Second)
			h.step(c, 12*time.Second)

			out, err := c.Submit(h.ctx, alice.UserID, Submission{QuestionID: snap.Question.ID, Payload: tilt, TimeToRespond: tt.client})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if out.Response.TimeToRespond != tt.want {
				t.Errorf("ttr = %v, want %v", out.Response.TimeToRespond, tt.want)
			}
		})
	}
}

func TestLateJoin(t *testing.T) {
	h := newHarness(t)
	closed := motionquiz.DefaultSettings()
	closed.AllowLateJoin = false
	c := h.create(&closed, []motionquiz.Question{tiltQuestion()}, alice)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Join(h.ctx, bob); !errors.Is(err, motionquiz.ErrInvalidState) {
		t.Errorf("late join: err = %v", err)
	}
	// Rejoining is always allowed.
	if _, err := c.Join(h.ctx, alice); err != nil {
		t.Errorf("rejoin: %v", err)
	}
}

func TestPublicQuestionHidesAnswer(t *testing.T) {
	h := newHarness(t)
	choice := motionquiz.Question{Type: motionquiz.QuestionChoice, Prompt: "Capital of Peru?", Options: []string{"Lima", "Cusco"}, Target: motionquiz.Target{Option: "Lima"}}
	c := h.create(nil, []motionquiz.Question{choice}, alice)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := h.step(c, 3*time.Second)
	if snap.Question.Target.Option != "" {
		t.Errorf("snapshot leaked the answer: %+v", snap.Question.Target)
	}

	lima := "Lima"
	out, err := c.Submit(h.ctx, alice.UserID, Submission{QuestionID: snap.Question.ID, Payload: motionquiz.Payload{Option: &lima}})
	if err != nil || !out.Response.IsCorrect {
		t.Errorf("submit: %+v, %v", out, err)
	}
}

func TestQueuedCallIgnoresLaterCancel(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion()}, alice)

	// Hold the actor so the next call sits in the inbox.
	release := make(chan struct{})
	busy := make(chan struct{})
	go c.do(h.ctx, func() {
		close(busy)
		<-release
	})
	<-busy

	ctx, cancel := context.WithCancel(h.ctx)
	ran := false
	errc := make(chan error, 1)
	go func() { errc <- c.do(ctx, func() { ran = true }) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(c.inbox) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("call never queued")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(release)

	if err := <-errc; err != nil {
		t.Fatalf("do = %v, want nil once queued", err)
	}
	if !ran {
		t.Error("queued work did not run")
	}
}

func TestAttachOrdersSnapshotBeforeLaterBroadcasts(t *testing.T) {
	h := newHarness(t)
	c := h.create(nil, []motionquiz.Question{tiltQuestion()}, alice)
	if err := c.Start(h.ctx, host.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}

	var (
		snap     motionquiz.Snapshot
		attached int
	)
	err := c.Attach(h.ctx, func(s motionquiz.Snapshot) {
		snap = s
		// The countdown expires while the connection is being attached.
		h.clk.Advance(3 * time.Second)
		attached = len(h.rec.messages())
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if snap.Session.Status != motionquiz.StatusCountdown {
		t.Fatalf("snapshot status = %s, want countdown", snap.Session.Status)
	}

	if now := h.snapshot(c); now.Session.Status != motionquiz.StatusActive {
		t.Fatalf("status after expiry = %s, want active", now.Session.Status)
	}
	later := h.rec.messages()[attached:]
	if !slices.ContainsFunc(later, func(m motionquiz.Message) bool { return m.Type == motionquiz.MessageQuestionStart }) {
		t.Error("question_start was broadcast before the attached snapshot was taken")
	}
}
