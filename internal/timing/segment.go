// Package timing records how original time maps onto processed time after
// trims, transitions and other duration-changing edits.
package timing

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Reason says why a segment's processed length differs from its original length.
type Reason int

const (
	Unchanged Reason = iota
	SilenceTrimmed
	SpeedChange
	Transition
	Manual
)

var reasonNames = map[Reason]string{
	Unchanged:      "unchanged",
	SilenceTrimmed: "silence_trimmed",
	SpeedChange:    "speed_change",
	Transition:     "transition",
	Manual:         "manual",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ParseReason is the inverse of Reason.String.
func ParseReason(s string) (Reason, error) {
	for r, name := range reasonNames {
		if name == s {
			return r, nil
		}
	}
	return Unchanged, fmt.Errorf("timing: unknown reason %q", s)
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	parsed, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Segment maps the original range [OriginalStart, OriginalEnd) linearly onto
// the processed range [ProcessedStart, ProcessedEnd). A zero-length processed
// range means the material was removed.
type Segment struct {
	OriginalStart  time.Duration
	OriginalEnd    time.Duration
	ProcessedStart time.Duration
	ProcessedEnd   time.Duration
	Reason         Reason
}

// Offset is the signed shift applied to the segment start.
func (s Segment) Offset() time.Duration {
	return s.ProcessedStart - s.OriginalStart
}

// OriginalLength is the duration of source material covered.
func (s Segment) OriginalLength() time.Duration {
	return s.OriginalEnd - s.OriginalStart
}

// ProcessedLength is the duration the material occupies after processing.
func (s Segment) ProcessedLength() time.Duration {
	return s.ProcessedEnd - s.ProcessedStart
}

// Removed reports whether the segment's material was cut entirely.
func (s Segment) Removed() bool {
	return s.ProcessedLength() == 0 && s.OriginalLength() > 0
}

func (s Segment) identity() bool {
	return s.ProcessedLength() == s.OriginalLength()
}

// forward maps an original time inside the segment to processed time.
func (s Segment) forward(t time.Duration) time.Duration {
	switch {
	case t <= s.OriginalStart:
		return s.ProcessedStart
	case t >= s.OriginalEnd:
		return s.ProcessedEnd
	case s.identity():
		return s.ProcessedStart + (t - s.OriginalStart)
	}
	frac := float64(t-s.OriginalStart) / float64(s.OriginalLength())
	return s.ProcessedStart + time.Duration(frac*float64(s.ProcessedLength()))
}

// inverse maps a processed time inside the segment back to original time.
func (s Segment) inverse(p time.Duration) time.Duration {
	switch {
	case s.ProcessedLength() == 0, p <= s.ProcessedStart:
		return s.OriginalStart
	case p >= s.ProcessedEnd:
		return s.OriginalEnd
	case s.identity():
		return s.OriginalStart + (p - s.ProcessedStart)
	}
	frac := float64(p-s.ProcessedStart) / float64(s.ProcessedLength())
	return s.OriginalStart + time.Duration(frac*float64(s.OriginalLength()))
}

type segmentJSON struct {
	OriginalStart  float64 `json:"original_start"`
	OriginalEnd    float64 `json:"original_end"`
	ProcessedStart float64 `json:"processed_start"`
	ProcessedEnd   float64 `json:"processed_end"`
	Offset         float64 `json:"offset"`
	Reason         Reason  `json:"reason"`
}

// MarshalJSON writes times as seconds.
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(segmentJSON{
		OriginalStart:  s.OriginalStart.Seconds(),
		OriginalEnd:    s.OriginalEnd.Seconds(),
		ProcessedStart: s.ProcessedStart.Seconds(),
		ProcessedEnd:   s.ProcessedEnd.Seconds(),
		Offset:         s.Offset().Seconds(),
		Reason:         s.Reason,
	})
}

// UnmarshalJSON reads times as seconds; the offset field is derived and ignored.
func (s *Segment) UnmarshalJSON(b []byte) error {
	var raw segmentJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Segment{
		OriginalStart:  seconds(raw.OriginalStart),
		OriginalEnd:    seconds(raw.OriginalEnd),
		ProcessedStart: seconds(raw.ProcessedStart),
		ProcessedEnd:   seconds(raw.ProcessedEnd),
		Reason:         raw.Reason,
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}
