package timing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rate = 1000 // one frame per millisecond keeps arithmetic readable

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// trimmed builds: keep 1s, drop 500ms, keep 2s, drop 250ms, keep 1s.
func trimmed() *Map {
	return NewBuilder(rate).
		Keep(1000).
		Remove(500, SilenceTrimmed).
		Keep(2000).
		Remove(250, SilenceTrimmed).
		Keep(1000).
		Build()
}

func TestBuilderDurations(t *testing.T) {
	m := trimmed()
	require.NoError(t, m.Validate())
	assert.Equal(t, ms(4750), m.OriginalDuration())
	assert.Equal(t, ms(4000), m.ProcessedDuration())
	assert.Equal(t, ms(750), m.RemovedDuration())
	assert.Len(t, m.Changes(), 2)

	segs := m.Segments()
	last := segs[len(segs)-1]
	// last segment start shifted by its offset plus its length is the output length
	assert.Equal(t, m.ProcessedDuration(), last.OriginalStart+last.Offset()+last.ProcessedLength())
	assert.Equal(t, -ms(750), last.Offset())
}

func TestProcessedTime(t *testing.T) {
	m := trimmed()
	tests := []struct {
		original, processed time.Duration
	}{
		{0, 0},
		{ms(500), ms(500)},
		{ms(1000), ms(1000)},
		{ms(1200), ms(1000)}, // inside removed range collapses to the cut point
		{ms(1500), ms(1000)},
		{ms(2000), ms(1500)},
		{ms(4750), ms(4000)},
		{ms(9000), ms(4000)}, // clamps
		{-ms(5), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.processed, m.ProcessedTime(tt.original), "original %v", tt.original)
	}
}

func TestProcessedTimeMonotonic(t *testing.T) {
	m := trimmed()
	prev := time.Duration(-1)
	for o := time.Duration(0); o <= m.OriginalDuration()+ms(10); o += 3 * time.Millisecond {
		p := m.ProcessedTime(o)
		if p < prev {
			t.Fatalf("processed time went backwards at %v: %v < %v", o, p, prev)
		}
		prev = p
	}
}

func TestOriginalTime(t *testing.T) {
	m := trimmed()
	assert.Equal(t, ms(500), m.OriginalTime(ms(500)))
	assert.Equal(t, ms(1500), m.OriginalTime(ms(1000)), "skips removed material")
	assert.Equal(t, ms(2000), m.OriginalTime(ms(1500)))
	assert.Equal(t, m.OriginalDuration(), m.OriginalTime(ms(4000)))

	for p := time.Duration(0); p < m.ProcessedDuration(); p += 7 * time.Millisecond {
		assert.Equal(t, p, m.ProcessedTime(m.OriginalTime(p)), "round trip at %v", p)
	}
}

func TestValidateRejectsGaps(t *testing.T) {
	_, err := NewMap([]Segment{
		{OriginalStart: 0, OriginalEnd: ms(10), ProcessedStart: 0, ProcessedEnd: ms(10)},
		{OriginalStart: ms(20), OriginalEnd: ms(30), ProcessedStart: ms(10), ProcessedEnd: ms(20)},
	})
	assert.ErrorIs(t, err, ErrInvalidMap)

	_, err = NewMap([]Segment{
		{OriginalStart: 0, OriginalEnd: ms(10), ProcessedStart: 0, ProcessedEnd: ms(10)},
		{OriginalStart: ms(10), OriginalEnd: ms(20), ProcessedStart: ms(5), ProcessedEnd: ms(15)},
	})
	assert.ErrorIs(t, err, ErrInvalidMap)
}

func TestConcat(t *testing.T) {
	m := Concat(trimmed(), Identity(ms(2000)))
	require.NoError(t, m.Validate())
	assert.Equal(t, ms(6750), m.OriginalDuration())
	assert.Equal(t, ms(6000), m.ProcessedDuration())
	assert.Equal(t, ms(4500), m.ProcessedTime(ms(5250)))
}

func TestCompose(t *testing.T) {
	first := trimmed() // 4750 -> 4000
	// second squeezes 200ms around processed 2000 into 100ms (a crossfade overlap)
	second := NewBuilder(rate).
		Keep(1900).
		Span(200, 100, Transition).
		Keep(1900).
		Build()

	m, err := Compose(first, second)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, first.OriginalDuration(), m.OriginalDuration())
	assert.Equal(t, ms(3900), m.ProcessedDuration())

	var reasons []Reason
	for _, s := range m.Changes() {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []Reason{SilenceTrimmed, Transition, SilenceTrimmed}, reasons)

	// composed lookup equals chained lookups
	for o := time.Duration(0); o <= first.OriginalDuration(); o += 11 * time.Millisecond {
		want := second.ProcessedTime(first.ProcessedTime(o))
		got := m.ProcessedTime(o)
		assert.InDelta(t, float64(want), float64(got), float64(time.Microsecond), "at %v", o)
	}

	_, err = Compose(first, Identity(ms(10)))
	assert.ErrorIs(t, err, ErrDurationMismatch)
}

func TestMapJSON(t *testing.T) {
	data, err := json.Marshal(trimmed())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reason":"silence_trimmed"`)

	var back Map
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, trimmed().Segments(), back.Segments())

	var video Map
	require.NoError(t, json.Unmarshal([]byte(`{"original_duration": 62.5, "processed_duration": 60}`), &video))
	assert.Equal(t, 60*time.Second, video.ProcessedDuration())
	assert.Equal(t, Manual, video.Segments()[0].Reason)
}

func TestFromKeeps(t *testing.T) {
	m, err := FromKeeps(rate, 4750, []FrameSpan{{0, 1000}, {1500, 3500}, {3750, 4750}}, SilenceTrimmed)
	require.NoError(t, err)
	assert.Equal(t, trimmed().Segments(), m.Segments())

	m, err = FromKeeps(rate, 3000, []FrameSpan{{500, 2000}}, SilenceTrimmed)
	require.NoError(t, err)
	assert.Equal(t, ms(1500), m.ProcessedDuration())
	assert.Equal(t, ms(1500), m.RemovedDuration())
	assert.Equal(t, ms(0), m.ProcessedTime(ms(500)))

	m, err = FromKeeps(rate, 2000, nil, SilenceTrimmed)
	require.NoError(t, err)
	assert.Equal(t, ms(0), m.ProcessedDuration())
	assert.Equal(t, ms(2000), m.OriginalDuration())
}

func TestFromKeepsRejectsBadSpans(t *testing.T) {
	for name, keeps := range map[string][]FrameSpan{
		"overlap":  {{0, 1000}, {900, 1500}},
		"unsorted": {{1000, 1500}, {0, 500}},
		"reversed": {{600, 500}},
		"past end": {{0, 2500}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromKeeps(rate, 2000, keeps, SilenceTrimmed)
			assert.ErrorIs(t, err, ErrInvalidMap)
		})
	}
	_, err := FromKeeps(0, 2000, nil, SilenceTrimmed)
	assert.ErrorIs(t, err, ErrInvalidMap)
}
