// Package sensor turns raw device samples into stable readings: orientation
// streams are smoothed over a trailing window and corrected for screen
// rotation, voice/gesture/touch samples are cleaned and given a confidence.
package sensor

import (
	"math"
	"strings"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

const DefaultSmoothingFactor = 10

// maxDeviation is the per-axis spread (degrees) at which a sample's
// confidence reaches zero.
const maxDeviation = 90.0

// Reading is one normalized sample.
type Reading struct {
	Orientation *motionquiz.Orientation  `json:"orientation,omitempty"`
	Voice       *motionquiz.VoiceInput   `json:"voice,omitempty"`
	Gesture     *motionquiz.GestureInput `json:"gesture,omitempty"`
	Touch       *motionquiz.TouchInput   `json:"touch,omitempty"`
	Confidence  float64                  `json:"confidence"`
	Samples     int                      `json:"samples"`
}

// Normalizer is not safe for concurrent use; each connection owns one.
type Normalizer struct {
	size   int
	window []motionquiz.Orientation
}

func NewNormalizer(smoothing int) *Normalizer {
	if smoothing <= 0 {
		smoothing = DefaultSmoothingFactor
	}
	return &Normalizer{
		size:   smoothing,
		window: make([]motionquiz.Orientation, 0, smoothing),
	}
}

// Reset drops the smoothing window.
func (n *Normalizer) Reset() { n.window = n.window[:0] }

// Len is the number of samples currently in the window.
func (n *Normalizer) Len() int { return len(n.window) }

// Push corrects o for the screen rotation, adds it to the window (evicting
// the oldest sample once full) and returns the smoothed orientation with a
// confidence derived from how far the new sample sits from the average.
func (n *Normalizer) Push(o motionquiz.Orientation, rotation int) Reading {
	o = Rotate(o, rotation)
	if len(n.window) == n.size {
		copy(n.window, n.window[1:])
		n.window = n.window[:n.size-1]
	}
	n.window = append(n.window, o)

	avg := n.average()
	dev := (angleDelta(o.Alpha, avg.Alpha) + math.Abs(o.Beta-avg.Beta) + math.Abs(o.Gamma-avg.Gamma)) / 3
	return Reading{
		Orientation: &avg,
		Confidence:  clamp01(1 - dev/maxDeviation),
		Samples:     len(n.window),
	}
}

// Normalize handles every modality present in s. Orientation goes through
// the smoothing window; the reading's confidence is the orientation
// confidence when present, else the strongest other modality's.
func (n *Normalizer) Normalize(s motionquiz.SensorSample) Reading {
	var r Reading
	if s.Orientation != nil {
		r = n.Push(*s.Orientation, s.ScreenRotation)
	}
	conf := r.Confidence
	if s.Voice != nil {
		v := NormalizeVoice(*s.Voice)
		r.Voice = &v
		conf = math.Max(conf, v.Confidence)
	}
	if s.Gesture != nil {
		g := NormalizeGesture(*s.Gesture)
		r.Gesture = &g
		conf = math.Max(conf, g.Confidence)
	}
	if s.Touch != nil {
		t := NormalizeTouch(*s.Touch, s.ViewportWidth, s.ViewportHeight)
		r.Touch = &t
		if t.Pressure > 0 {
			conf = math.Max(conf, t.Pressure)
		} else {
			conf = 1
		}
	}
	if s.Orientation == nil {
		r.Confidence = conf
	}
	return r
}

func (n *Normalizer) average() motionquiz.Orientation {
	var sin, cos, beta, gamma float64
	for _, o := range n.window {
		rad := o.Alpha * math.Pi / 180
		sin += math.Sin(rad)
		cos += math.Cos(rad)
		beta += o.Beta
		gamma += o.Gamma
	}
	count := float64(len(n.window))
	alpha := math.Atan2(sin/count, cos/count) * 180 / math.Pi
	if alpha < 0 {
		alpha += 360
	}
	return motionquiz.Orientation{
		Alpha: round2(alpha),
		Beta:  round2(beta / count),
		Gamma: round2(gamma / count),
	}
}

// Rotate maps the tilt axes into the portrait frame. Rotations other than
// 0, 90, -90 (270) and 180 are left untouched.
func Rotate(o motionquiz.Orientation, rotation int) motionquiz.Orientation {
	switch ((rotation % 360) + 360) % 360 {
	case 90:
		o.Beta, o.Gamma = o.Gamma, -o.Beta
	case 270:
		o.Beta, o.Gamma = -o.Gamma, o.Beta
	case 180:
		o.Beta, o.Gamma = -o.Beta, -o.Gamma
	}
	return o
}

func NormalizeVoice(v motionquiz.VoiceInput) motionquiz.VoiceInput {
	return motionquiz.VoiceInput{
		Transcript: strings.Join(strings.Fields(v.Transcript), " "),
		Confidence: clamp01(v.Confidence),
	}
}

func NormalizeGesture(g motionquiz.GestureInput) motionquiz.GestureInput {
	return motionquiz.GestureInput{
		Label:      strings.TrimSpace(g.Label),
		Confidence: clamp01(g.Confidence),
	}
}

// NormalizeTouch scales pixel coordinates into [0,1] screen space. A zero
// viewport means the client already sent normalized coordinates.
func NormalizeTouch(t motionquiz.TouchInput, width, height float64) motionquiz.TouchInput {
	if width > 0 {
		t.X /= width
	}
	if height > 0 {
		t.Y /= height
	}
	return motionquiz.TouchInput{
		X:        clamp01(t.X),
		Y:        clamp01(t.Y),
		Pressure: clamp01(t.Pressure),
	}
}

// angleDelta is the shortest distance between two headings in degrees.
func angleDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
