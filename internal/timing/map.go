package timing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidMap is returned when segments are unsorted, overlapping or gapped.
	ErrInvalidMap = errors.New("timing: invalid map")
	// ErrDurationMismatch is returned when composing maps whose timelines do not line up.
	ErrDurationMismatch = errors.New("timing: duration mismatch")
)

// composeTolerance absorbs per-take nanosecond rounding when frame-derived
// durations are summed.
const composeTolerance = time.Microsecond

// Map is an ordered, contiguous list of segments covering [0, OriginalDuration).
type Map struct {
	segments []Segment
}

// NewMap validates segs and wraps them in a Map.
func NewMap(segs []Segment) (*Map, error) {
	m := &Map{segments: append([]Segment(nil), segs...)}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Identity returns a map that leaves a d-long timeline untouched.
func Identity(d time.Duration) *Map {
	if d <= 0 {
		return &Map{}
	}
	return &Map{segments: []Segment{{OriginalEnd: d, ProcessedEnd: d}}}
}

// Segments returns a copy of the segment list.
func (m *Map) Segments() []Segment {
	return append([]Segment(nil), m.segments...)
}

// Len returns the number of segments.
func (m *Map) Len() int {
	return len(m.segments)
}

// OriginalDuration is the length of the source timeline.
func (m *Map) OriginalDuration() time.Duration {
	if len(m.segments) == 0 {
		return 0
	}
	return m.segments[len(m.segments)-1].OriginalEnd
}

// ProcessedDuration is the length of the output timeline.
func (m *Map) ProcessedDuration() time.Duration {
	if len(m.segments) == 0 {
		return 0
	}
	return m.segments[len(m.segments)-1].ProcessedEnd
}

// RemovedDuration is the total original time that no longer exists in the output.
func (m *Map) RemovedDuration() time.Duration {
	return m.OriginalDuration() - m.ProcessedDuration()
}

// Changes returns the segments whose reason is not Unchanged.
func (m *Map) Changes() []Segment {
	var out []Segment
	for _, s := range m.segments {
		if s.Reason != Unchanged {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that segments are contiguous and monotonic in both domains.
func (m *Map) Validate() error {
	var origCursor, procCursor time.Duration
	for i, s := range m.segments {
		if s.OriginalStart != origCursor {
			return fmt.Errorf("%w: segment %d starts at %v, expected %v", ErrInvalidMap, i, s.OriginalStart, origCursor)
		}
		if s.ProcessedStart != procCursor {
			return fmt.Errorf("%w: segment %d processed start %v, expected %v", ErrInvalidMap, i, s.ProcessedStart, procCursor)
		}
		if s.OriginalLength() <= 0 || s.ProcessedLength() < 0 {
			return fmt.Errorf("%w: segment %d has non-positive length", ErrInvalidMap, i)
		}
		origCursor, procCursor = s.OriginalEnd, s.ProcessedEnd
	}
	return nil
}

// ProcessedTime maps an original time to processed time. Times outside the
// map clamp to its ends. The result is non-decreasing in t.
func (m *Map) ProcessedTime(t time.Duration) time.Duration {
	n := len(m.segments)
	if n == 0 || t <= 0 {
		return 0
	}
	if t >= m.OriginalDuration() {
		return m.ProcessedDuration()
	}
	i := sort.Search(n, func(i int) bool { return m.segments[i].OriginalEnd > t })
	return m.segments[i].forward(t)
}

// OriginalTime maps a processed time back to the earliest original time that
// produces it. Removed material is skipped.
func (m *Map) OriginalTime(p time.Duration) time.Duration {
	n := len(m.segments)
	if n == 0 || p <= 0 {
		return 0
	}
	if p >= m.ProcessedDuration() {
		return m.OriginalDuration()
	}
	i := sort.Search(n, func(i int) bool { return m.segments[i].ProcessedEnd > p })
	return m.segments[i].inverse(p)
}

// Concat joins maps end to end, as when takes are placed one after another.
func Concat(maps ...*Map) *Map {
	out := &Map{}
	var origShift, procShift time.Duration
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, s := range m.segments {
			out.segments = append(out.segments, Segment{
				OriginalStart:  s.OriginalStart + origShift,
				OriginalEnd:    s.OriginalEnd + origShift,
				ProcessedStart: s.ProcessedStart + procShift,
				ProcessedEnd:   s.ProcessedEnd + procShift,
				Reason:         s.Reason,
			})
		}
		origShift += m.OriginalDuration()
		procShift += m.ProcessedDuration()
	}
	out.merge()
	return out
}

// Compose returns the map equivalent to applying first and then second.
// first's processed timeline must be second's original timeline.
func Compose(first, second *Map) (*Map, error) {
	if d := first.ProcessedDuration() - second.OriginalDuration(); d > composeTolerance || d < -composeTolerance {
		return nil, fmt.Errorf("%w: first produces %v, second expects %v",
			ErrDurationMismatch, first.ProcessedDuration(), second.OriginalDuration())
	}

	out := &Map{}
	for _, a := range first.segments {
		if a.ProcessedLength() == 0 {
			p := second.ProcessedTime(a.ProcessedStart)
			out.segments = append(out.segments, Segment{
				OriginalStart: a.OriginalStart, OriginalEnd: a.OriginalEnd,
				ProcessedStart: p, ProcessedEnd: p,
				Reason: a.Reason,
			})
			continue
		}

		// split a wherever second changes segment inside a's processed range
		cuts := []time.Duration{a.ProcessedStart}
		for _, b := range second.segments {
			if b.OriginalStart > a.ProcessedStart && b.OriginalStart < a.ProcessedEnd {
				cuts = append(cuts, b.OriginalStart)
			}
		}
		cuts = append(cuts, a.ProcessedEnd)

		for k := 0; k+1 < len(cuts); k++ {
			x0, x1 := cuts[k], cuts[k+1]
			o0, o1 := a.inverse(x0), a.inverse(x1)
			if k == 0 {
				o0 = a.OriginalStart
			}
			if k+1 == len(cuts)-1 {
				o1 = a.OriginalEnd
			}
			if o1 <= o0 {
				continue
			}
			reason := a.Reason
			if b, ok := second.segmentAt(x0); ok && b.Reason != Unchanged {
				reason = b.Reason
			}
			out.segments = append(out.segments, Segment{
				OriginalStart:  o0,
				OriginalEnd:    o1,
				ProcessedStart: second.ProcessedTime(x0),
				ProcessedEnd:   second.ProcessedTime(x1),
				Reason:         reason,
			})
		}
	}
	out.stitch()
	out.merge()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Map) segmentAt(t time.Duration) (Segment, bool) {
	n := len(m.segments)
	i := sort.Search(n, func(i int) bool { return m.segments[i].OriginalEnd > t })
	if i == n {
		return Segment{}, false
	}
	return m.segments[i], true
}

// stitch closes sub-microsecond gaps left by interpolation rounding.
func (m *Map) stitch() {
	for i := 1; i < len(m.segments); i++ {
		prev := m.segments[i-1]
		m.segments[i].OriginalStart = prev.OriginalEnd
		m.segments[i].ProcessedStart = prev.ProcessedEnd
		if m.segments[i].ProcessedEnd < m.segments[i].ProcessedStart {
			m.segments[i].ProcessedEnd = m.segments[i].ProcessedStart
		}
	}
}

// merge folds adjacent segments that share a reason and a linear mapping.
func (m *Map) merge() {
	if len(m.segments) < 2 {
		return
	}
	out := m.segments[:1]
	for _, s := range m.segments[1:] {
		last := &out[len(out)-1]
		sameShape := (last.identity() && s.identity()) || (last.Removed() && s.Removed())
		if last.Reason == s.Reason && sameShape &&
			last.OriginalEnd == s.OriginalStart && last.ProcessedEnd == s.ProcessedStart {
			last.OriginalEnd = s.OriginalEnd
			last.ProcessedEnd = s.ProcessedEnd
			continue
		}
		out = append(out, s)
	}
	m.segments = out
}

type mapJSON struct {
	OriginalDuration  float64   `json:"original_duration"`
	ProcessedDuration float64   `json:"processed_duration"`
	Segments          []Segment `json:"segments"`
}

// MarshalJSON writes the map with durations in seconds.
func (m *Map) MarshalJSON() ([]byte, error) {
	segs := m.segments
	if segs == nil {
		segs = []Segment{}
	}
	return json.Marshal(mapJSON{
		OriginalDuration:  m.OriginalDuration().Seconds(),
		ProcessedDuration: m.ProcessedDuration().Seconds(),
		Segments:          segs,
	})
}

// UnmarshalJSON reads a map. A document with durations but no segments is
// treated as a single segment spanning both durations.
func (m *Map) UnmarshalJSON(b []byte) error {
	var raw mapJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Segments) == 0 && raw.OriginalDuration > 0 {
		processed := raw.ProcessedDuration
		if processed == 0 {
			processed = raw.OriginalDuration
		}
		raw.Segments = []Segment{{
			OriginalEnd:  seconds(raw.OriginalDuration),
			ProcessedEnd: seconds(processed),
			Reason:       Manual,
		}}
		if processed == raw.OriginalDuration {
			raw.Segments[0].Reason = Unchanged
		}
	}
	parsed, err := NewMap(raw.Segments)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}
