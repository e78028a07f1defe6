package evaluator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

func strp(s string) *string { return &s }

func orientationQuestion(a, b, g float64) motionquiz.Question {
	return motionquiz.Question{
		Type:   motionquiz.QuestionOrientation,
		Target: motionquiz.Target{Orientation: &motionquiz.Orientation{Alpha: a, Beta: b, Gamma: g}},
	}
}

func TestOrientation(t *testing.T) {
	e := New(DefaultConfig())
	tests := []struct {
		name        string
		got         *motionquiz.Orientation
		wantAcc     float64
		wantCorrect bool
	}{
		{"exact match", &motionquiz.Orientation{}, 100, true},
		{"sum 120", &motionquiz.Orientation{Beta: 60, Gamma: 60}, 60, false},
		{"sum 90 on threshold", &motionquiz.Orientation{Alpha: 30, Beta: 30, Gamma: 30}, 70, true},
		{"far off clamps to zero", &motionquiz.Orientation{Alpha: 180, Beta: 180, Gamma: 90}, 0, false},
		{"heading does not wrap", &motionquiz.Orientation{Alpha: 354}, 0, false},
		{"missing payload", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.Evaluate(orientationQuestion(0, 0, 0), motionquiz.Payload{Orientation: tt.got}, time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(r.Accuracy-tt.wantAcc) > 0.01 {
				t.Errorf("accuracy = %.2f, want %.2f", r.Accuracy, tt.wantAcc)
			}
			if r.IsCorrect != tt.wantCorrect {
				t.Errorf("is_correct = %v, want %v", r.IsCorrect, tt.wantCorrect)
			}
			if math.Abs(r.Confidence-tt.wantAcc/100) > 0.0001 {
				t.Errorf("confidence = %.4f, want %.4f", r.Confidence, tt.wantAcc/100)
			}
		})
	}
}

func TestOrientationAbsoluteDifference(t *testing.T) {
	e := New(DefaultConfig())
	tests := []struct {
		name        string
		want, got   motionquiz.Orientation
		wantAcc     float64
		wantCorrect bool
	}{
		{"350 vs 10", motionquiz.Orientation{Alpha: 350}, motionquiz.Orientation{Alpha: 10}, 0, false},
		{"10 vs 350", motionquiz.Orientation{Alpha: 10}, motionquiz.Orientation{Alpha: 350}, 0, false},
		{"negative axes", motionquiz.Orientation{Beta: -30}, motionquiz.Orientation{Beta: 30}, 80, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Orientation(&tt.want, &tt.got)
			if math.Abs(r.Accuracy-tt.wantAcc) > 0.01 {
				t.Errorf("accuracy = %.2f, want %.2f", r.Accuracy, tt.wantAcc)
			}
			if r.IsCorrect != tt.wantCorrect {
				t.Errorf("is_correct = %v, want %v", r.IsCorrect, tt.wantCorrect)
			}
		})
	}
}

func TestVoice(t *testing.T) {
	e := New(DefaultConfig())
	q := motionquiz.Question{Type: motionquiz.QuestionVoice, Target: motionquiz.Target{Phrase: "hello world"}}

	tests := []struct {
		name        string
		voice       *motionquiz.VoiceInput
		wantAcc     float64
		wantCorrect bool
		wantConf    float64
	}{
		{"identical", &motionquiz.VoiceInput{Transcript: "hello world", Confidence: 0.92}, 100, true, 0.92},
		{"case and punctuation", &motionquiz.VoiceInput{Transcript: "Hello, World!", Confidence: 0.8}, 100, true, 0.8},
		{"unrelated", &motionquiz.VoiceInput{Transcript: "goodbye", Confidence: 0.9}, 0, false, 0.9},
		{"half", &motionquiz.VoiceInput{Transcript: "hello there", Confidence: 0.5}, 50, false, 0.5},
		{"empty transcript", &motionquiz.VoiceInput{Transcript: "", Confidence: 0.3}, 0, false, 0.3},
		{"missing payload", nil, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.Evaluate(q, motionquiz.Payload{Voice: tt.voice}, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(r.Accuracy-tt.wantAcc) > 0.01 || r.IsCorrect != tt.wantCorrect || r.Confidence != tt.wantConf {
				t.Errorf("got %+v, want accuracy %.0f correct %v confidence %.2f", r, tt.wantAcc, tt.wantCorrect, tt.wantConf)
			}
		})
	}
}

func TestSimilarityCountsRepeatsOnce(t *testing.T) {
	if got := Similarity("go go go", "go"); math.Abs(got-1.0/3) > 0.0001 {
		t.Errorf("similarity = %.4f, want 0.3333", got)
	}
	if got := Similarity("jump left", "left jump"); got != 1 {
		t.Errorf("similarity = %.4f, want 1 (order-insensitive)", got)
	}
}

func TestChoiceAndBoolean(t *testing.T) {
	e := New(DefaultConfig())
	choice := motionquiz.Question{Type: motionquiz.QuestionChoice, Target: motionquiz.Target{Option: "b"}}
	boolean := motionquiz.Question{Type: motionquiz.QuestionBoolean, Target: motionquiz.Target{Option: "true"}}

	tests := []struct {
		name        string
		q           motionquiz.Question
		option      *string
		wantCorrect bool
		wantAcc     float64
	}{
		{"choice correct", choice, strp("b"), true, 100},
		{"choice wrong", choice, strp("a"), false, 0},
		{"choice is exact", choice, strp("B"), false, 0},
		{"choice missing", choice, nil, false, 0},
		{"boolean correct", boolean, strp("TRUE"), true, 100},
		{"boolean wrong", boolean, strp("false"), false, 0},
		{"boolean garbage", boolean, strp("maybe"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.Evaluate(tt.q, motionquiz.Payload{Option: tt.option}, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.IsCorrect != tt.wantCorrect || r.Accuracy != tt.wantAcc {
				t.Errorf("got %+v", r)
			}
			if tt.option != nil && r.Confidence != 1 {
				t.Errorf("confidence = %v, want 1", r.Confidence)
			}
		})
	}
}

func TestGesture(t *testing.T) {
	e := New(DefaultConfig())
	q := motionquiz.Question{Type: motionquiz.QuestionGesture, Target: motionquiz.Target{Gesture: "thumbs_up"}}

	r, _ := e.Evaluate(q, motionquiz.Payload{Gesture: &motionquiz.GestureInput{Label: "thumbs_up", Confidence: 0.85}}, 0)
	if !r.IsCorrect || math.Abs(r.Accuracy-85) > 0.001 || r.Confidence != 0.85 {
		t.Errorf("match: got %+v", r)
	}

	r, _ = e.Evaluate(q, motionquiz.Payload{Gesture: &motionquiz.GestureInput{Label: "wave", Confidence: 0.99}}, 0)
	if r.IsCorrect || r.Accuracy != 0 || r.Confidence != 0.99 {
		t.Errorf("mismatch: got %+v", r)
	}

	r, _ = e.Evaluate(q, motionquiz.Payload{}, 0)
	if r.IsCorrect || r.Accuracy != 0 {
		t.Errorf("missing: got %+v", r)
	}
}

func TestMultiModal(t *testing.T) {
	e := New(DefaultConfig())
	target := motionquiz.Target{
		Phrase:  "jump",
		Gesture: "wave",
	}
	q := motionquiz.Question{Type: motionquiz.QuestionMultiModal, Target: target}
	both := motionquiz.Payload{
		Voice:   &motionquiz.VoiceInput{Transcript: "jump", Confidence: 1},
		Gesture: &motionquiz.GestureInput{Label: "wave", Confidence: 0.8},
	}

	r, _ := e.Evaluate(q, both, 0)
	if !r.IsCorrect || math.Abs(r.Accuracy-90) > 0.001 || math.Abs(r.Confidence-0.9) > 0.001 {
		t.Errorf("equal weights: got %+v, want accuracy 90 confidence 0.9", r)
	}

	voiceOnly := motionquiz.Payload{Voice: both.Voice}
	r, _ = e.Evaluate(q, voiceOnly, 0)
	if r.IsCorrect || math.Abs(r.Accuracy-50) > 0.001 {
		t.Errorf("one modality missing: got %+v, want accuracy 50 incorrect", r)
	}

	q.Target.Weights = map[motionquiz.Modality]float64{
		motionquiz.ModalityVoice:   3,
		motionquiz.ModalityGesture: 1,
	}
	r, _ = e.Evaluate(q, voiceOnly, 0)
	if !r.IsCorrect || math.Abs(r.Accuracy-75) > 0.001 {
		t.Errorf("weighted: got %+v, want accuracy 75 correct", r)
	}
}

func TestUnsupportedType(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Evaluate(motionquiz.Question{Type: "interpretive_dance"}, motionquiz.Payload{}, 0)
	if !errors.Is(err, motionquiz.ErrUnsupportedQuestionType) {
		t.Fatalf("err = %v, want ErrUnsupportedQuestionType", err)
	}
}

func TestThresholdsAreConfigurable(t *testing.T) {
	e := New(Config{CorrectThreshold: 50, VoiceThreshold: 0.5})

	r := e.Orientation(&motionquiz.Orientation{}, &motionquiz.Orientation{Beta: 60, Gamma: 60})
	if !r.IsCorrect {
		t.Error("accuracy 60 should pass a 50 threshold")
	}
	r = e.Voice("hello world", &motionquiz.VoiceInput{Transcript: "hello"})
	if !r.IsCorrect {
		t.Error("similarity 0.5 should pass a 0.5 threshold")
	}
}

func TestZeroThresholdIsHonored(t *testing.T) {
	e := New(Config{})

	r := e.Orientation(&motionquiz.Orientation{}, &motionquiz.Orientation{Alpha: 180, Beta: 180, Gamma: 180})
	if !r.IsCorrect || r.Accuracy != 0 {
		t.Errorf("orientation: got %+v, want accuracy 0 counted correct", r)
	}
	r = e.Voice("open the door", &motionquiz.VoiceInput{Transcript: "banana"})
	if !r.IsCorrect {
		t.Errorf("voice: got %+v, want correct under a zero threshold", r)
	}
}
