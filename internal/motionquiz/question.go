package motionquiz

import (
	"fmt"
	"time"
)

type QuestionType string

const (
	QuestionChoice      QuestionType = "choice"
	QuestionBoolean     QuestionType = "boolean"
	QuestionOrientation QuestionType = "orientation_match"
	QuestionVoice       QuestionType = "voice_command"
	QuestionGesture     QuestionType = "gesture"
	QuestionMultiModal  QuestionType = "multi_modal"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionChoice, QuestionBoolean, QuestionOrientation,
		QuestionVoice, QuestionGesture, QuestionMultiModal:
		return true
	}
	return false
}

// Modality is one input channel a multi-modal question can combine.
type Modality string

const (
	ModalityChoice      Modality = "choice"
	ModalityOrientation Modality = "orientation"
	ModalityVoice       Modality = "voice"
	ModalityGesture     Modality = "gesture"
)

type Orientation struct {
	Alpha float64 `json:"alpha"` // z axis, 0..360
	Beta  float64 `json:"beta"`  // x axis, -180..180
	Gamma float64 `json:"gamma"` // y axis, -90..90
}

type Target struct {
	Option      string               `json:"option,omitempty"`
	Orientation *Orientation         `json:"orientation,omitempty"`
	Phrase      string               `json:"phrase,omitempty"`
	Gesture     string               `json:"gesture,omitempty"`
	Weights     map[Modality]float64 `json:"weights,omitempty"`
}

// Modalities lists the constituent targets set on t, in a fixed order.
func (t Target) Modalities() []Modality {
	var ms []Modality
	if t.Option != "" {
		ms = append(ms, ModalityChoice)
	}
	if t.Orientation != nil {
		ms = append(ms, ModalityOrientation)
	}
	if t.Phrase != "" {
		ms = append(ms, ModalityVoice)
	}
	if t.Gesture != "" {
		ms = append(ms, ModalityGesture)
	}
	return ms
}

type Question struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Position  int          `json:"position"`
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Options   []string     `json:"options,omitempty"`
	Target    Target       `json:"target"`
	Points    int          `json:"points"`
	TimeLimit int          `json:"time_limit"` // seconds
}

func (q Question) Limit() time.Duration { return time.Duration(q.TimeLimit) * time.Second }

// Validate checks that the target carries what the question type needs.
func (q Question) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("question %q: %w: %s", q.ID, ErrUnsupportedQuestionType, q.Type)
	}
	if q.Points < 0 || q.TimeLimit <= 0 {
		return fmt.Errorf("question %q: points must be >= 0 and time_limit > 0", q.ID)
	}
	var ok bool
	switch q.Type {
	case QuestionChoice, QuestionBoolean:
		ok = q.Target.Option != ""
	case QuestionOrientation:
		ok = q.Target.Orientation != nil
	case QuestionVoice:
		ok = q.Target.Phrase != ""
	case QuestionGesture:
		ok = q.Target.Gesture != ""
	case QuestionMultiModal:
		ok = len(q.Target.Modalities()) > 0
	}
	if !ok {
		return fmt.Errorf("question %q: missing target for type %s", q.ID, q.Type)
	}
	return nil
}

// Public strips the answer key from choice and boolean questions. Sensor
// targets stay visible since players must know what to match.
func (q Question) Public() Question {
	p := q
	p.Target.Weights = nil
	switch q.Type {
	case QuestionChoice, QuestionBoolean:
		p.Target = Target{}
	case QuestionMultiModal:
		p.Target.Option = ""
	}
	return p
}

type VoiceInput struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type GestureInput struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type TouchInput struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

// Payload is the raw modality data a participant submits. Any field may be
// absent; evaluators treat absence as a zero-scored answer.
type Payload struct {
	Option      *string       `json:"option,omitempty"`
	Orientation *Orientation  `json:"orientation,omitempty"`
	Voice       *VoiceInput   `json:"voice,omitempty"`
	Gesture     *GestureInput `json:"gesture,omitempty"`
	Touch       *TouchInput   `json:"touch,omitempty"`
}
