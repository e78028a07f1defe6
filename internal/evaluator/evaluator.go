// Package evaluator scores a submitted payload against a question. Every
// policy is a pure function of (question, payload, elapsed time).
package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// Result is what an evaluation yields for one submission.
type Result struct {
	IsCorrect  bool    `json:"is_correct"`
	Accuracy   float64 `json:"accuracy"`   // 0..100
	Confidence float64 `json:"confidence"` // 0..1
}

type Config struct {
	// CorrectThreshold is the accuracy at or above which orientation and
	// multi-modal answers count as correct.
	CorrectThreshold float64
	// VoiceThreshold is the token similarity at or above which a transcript
	// counts as correct.
	VoiceThreshold float64
}

func DefaultConfig() Config {
	return Config{CorrectThreshold: 70, VoiceThreshold: 0.7}
}

type Evaluator struct {
	cfg Config
}

// New uses cfg as given. A zero threshold is honored: every answer with
// the expected modality counts as correct.
func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate dispatches on the question type. A missing payload for the
// expected modality scores zero; only an unknown type is an error.
func (e *Evaluator) Evaluate(q motionquiz.Question, p motionquiz.Payload, _ time.Duration) (Result, error) {
	switch q.Type {
	case motionquiz.QuestionChoice:
		return Choice(q.Target.Option, p.Option), nil
	case motionquiz.QuestionBoolean:
		return Boolean(q.Target.Option, p.Option), nil
	case motionquiz.QuestionOrientation:
		return e.Orientation(q.Target.Orientation, p.Orientation), nil
	case motionquiz.QuestionVoice:
		return e.Voice(q.Target.Phrase, p.Voice), nil
	case motionquiz.QuestionGesture:
		return Gesture(q.Target.Gesture, p.Gesture), nil
	case motionquiz.QuestionMultiModal:
		return e.MultiModal(q.Target, p), nil
	}
	return Result{}, fmt.Errorf("%w: %q", motionquiz.ErrUnsupportedQuestionType, q.Type)
}

func Choice(want string, got *string) Result {
	if got == nil || *got != want {
		return Result{Confidence: confidenceFor(got)}
	}
	return Result{IsCorrect: true, Accuracy: 100, Confidence: 1}
}

// Boolean accepts any spelling strconv.ParseBool understands.
func Boolean(want string, got *string) Result {
	if got == nil {
		return Result{}
	}
	w, err1 := strconv.ParseBool(strings.TrimSpace(want))
	g, err2 := strconv.ParseBool(strings.TrimSpace(*got))
	if err1 != nil || err2 != nil || w != g {
		return Result{Confidence: 1}
	}
	return Result{IsCorrect: true, Accuracy: 100, Confidence: 1}
}

func (e *Evaluator) Orientation(want, got *motionquiz.Orientation) Result {
	if want == nil || got == nil {
		return Result{}
	}
	sum := axisDelta(want.Alpha, got.Alpha) + axisDelta(want.Beta, got.Beta) + axisDelta(want.Gamma, got.Gamma)
	acc := math.Max(0, 100-sum/3)
	return Result{
		IsCorrect:  acc >= e.cfg.CorrectThreshold,
		Accuracy:   acc,
		Confidence: acc / 100,
	}
}

func (e *Evaluator) Voice(phrase string, got *motionquiz.VoiceInput) Result {
	if got == nil {
		return Result{}
	}
	sim := Similarity(phrase, got.Transcript)
	return Result{
		IsCorrect:  sim >= e.cfg.VoiceThreshold,
		Accuracy:   sim * 100,
		Confidence: clamp01(got.Confidence),
	}
}

func Gesture(want string, got *motionquiz.GestureInput) Result {
	if got == nil || got.Label == "" {
		return Result{}
	}
	conf := clamp01(got.Confidence)
	if got.Label != want {
		return Result{Confidence: conf}
	}
	return Result{IsCorrect: true, Accuracy: conf * 100, Confidence: conf}
}

// MultiModal scores every constituent target on its own and combines them
// with the question's weights (equal when unset).
func (e *Evaluator) MultiModal(t motionquiz.Target, p motionquiz.Payload) Result {
	modalities := t.Modalities()
	if len(modalities) == 0 {
		return Result{}
	}

	var acc, conf, total float64
	for _, m := range modalities {
		var r Result
		switch m {
		case motionquiz.ModalityChoice:
			r = Choice(t.Option, p.Option)
		case motionquiz.ModalityOrientation:
			r = e.Orientation(t.Orientation, p.Orientation)
		case motionquiz.ModalityVoice:
			r = e.Voice(t.Phrase, p.Voice)
		case motionquiz.ModalityGesture:
			r = Gesture(t.Gesture, p.Gesture)
		}
		w := 1.0
		if len(t.Weights) > 0 {
			w = t.Weights[m]
		}
		if w <= 0 {
			continue
		}
		acc += r.Accuracy * w
		conf += r.Confidence * w
		total += w
	}
	if total == 0 {
		return Result{}
	}
	acc /= total
	return Result{
		IsCorrect:  acc >= e.cfg.CorrectThreshold,
		Accuracy:   acc,
		Confidence: conf / total,
	}
}

// Similarity is the share of tokens two phrases have in common, relative to
// the longer of the two. Tokens are lower-cased runs of letters and digits.
func Similarity(target, transcript string) float64 {
	want, got := tokenize(target), tokenize(transcript)
	longest := max(len(want), len(got))
	if longest == 0 || len(got) == 0 {
		return 0
	}

	counts := make(map[string]int, len(want))
	for _, tok := range want {
		counts[tok]++
	}
	shared := 0
	for _, tok := range got {
		if counts[tok] > 0 {
			counts[tok]--
			shared++
		}
	}
	return float64(shared) / float64(longest)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// axisDelta is the plain absolute difference. Headings are not wrapped:
// 350 against 10 is 340 degrees apart.
func axisDelta(a, b float64) float64 {
	return math.Abs(a - b)
}

func confidenceFor(got *string) float64 {
	if got == nil {
		return 0
	}
	return 1
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
