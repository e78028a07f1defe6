package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// Memory keeps everything in maps. It backs tests and single-node runs
// that need no archive.
type Memory struct {
	mu        sync.RWMutex
	sessions  map[string]motionquiz.Session
	questions map[string][]motionquiz.Question // by session
	rounds    map[string]motionquiz.Round
	responses map[string][]motionquiz.Response // by session
	answered  map[string]struct{}              // round id + user id
	scores    map[string]map[string]motionquiz.Score
}

func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]motionquiz.Session),
		questions: make(map[string][]motionquiz.Question),
		rounds:    make(map[string]motionquiz.Round),
		responses: make(map[string][]motionquiz.Response),
		answered:  make(map[string]struct{}),
		scores:    make(map[string]map[string]motionquiz.Score),
	}
}

func (m *Memory) CreateSession(_ context.Context, s motionquiz.Session, questions []motionquiz.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %q already exists", s.ID)
	}
	m.sessions[s.ID] = s
	qs := slices.Clone(questions)
	slices.SortFunc(qs, func(a, b motionquiz.Question) int { return cmp.Compare(a.Position, b.Position) })
	m.questions[s.ID] = qs
	m.scores[s.ID] = make(map[string]motionquiz.Score)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (motionquiz.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return motionquiz.Session{}, motionquiz.ErrNotFound
	}
	return s, nil
}

func (m *Memory) UpdateSession(_ context.Context, s motionquiz.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return motionquiz.ErrNotFound
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) ListQuestions(_ context.Context, sessionID string) ([]motionquiz.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.questions[sessionID]), nil
}

func (m *Memory) CreateRound(_ context.Context, r motionquiz.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[r.ID]; ok {
		return fmt.Errorf("round %q already exists", r.ID)
	}
	m.rounds[r.ID] = r
	return nil
}

func (m *Memory) GetRound(_ context.Context, id string) (motionquiz.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[id]
	if !ok {
		return motionquiz.Round{}, motionquiz.ErrNotFound
	}
	return r, nil
}

func (m *Memory) UpdateRound(_ context.Context, r motionquiz.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[r.ID]; !ok {
		return motionquiz.ErrNotFound
	}
	m.rounds[r.ID] = r
	return nil
}

func (m *Memory) ListRounds(_ context.Context, sessionID string) ([]motionquiz.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []motionquiz.Round
	for _, r := range m.rounds {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b motionquiz.Round) int { return cmp.Compare(a.Number, b.Number) })
	return out, nil
}

func (m *Memory) CreateResponse(_ context.Context, r motionquiz.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.RoundID + "\x00" + r.UserID
	if _, ok := m.answered[key]; ok {
		return motionquiz.ErrDuplicateResponse
	}
	m.answered[key] = struct{}{}
	m.responses[r.SessionID] = append(m.responses[r.SessionID], r)
	return nil
}

func (m *Memory) ListResponses(_ context.Context, sessionID string) ([]motionquiz.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.responses[sessionID]), nil
}

func (m *Memory) CreateScore(_ context.Context, sc motionquiz.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scores, ok := m.scores[sc.SessionID]
	if !ok {
		return motionquiz.ErrNotFound
	}
	if _, ok := scores[sc.UserID]; ok {
		return fmt.Errorf("score for %q already exists", sc.UserID)
	}
	scores[sc.UserID] = sc
	return nil
}

func (m *Memory) UpdateScore(_ context.Context, sc motionquiz.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scores[sc.SessionID][sc.UserID]; !ok {
		return motionquiz.ErrNotFound
	}
	m.scores[sc.SessionID][sc.UserID] = sc
	return nil
}

func (m *Memory) ListScores(_ context.Context, sessionID string) ([]motionquiz.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]motionquiz.Score, 0, len(m.scores[sessionID]))
	for _, sc := range m.scores[sessionID] {
		out = append(out, sc)
	}
	slices.SortFunc(out, func(a, b motionquiz.Score) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}
