package processor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

func TestGainLaw(t *testing.T) {
	comp := gainLaw{thresholdDB: -20, ratio: 4}
	exp := gainLaw{thresholdDB: -40, ratio: 3, expander: true, floorDB: -20}
	soft := gainLaw{thresholdDB: -20, ratio: 4, kneeDB: 10}

	tests := []struct {
		name  string
		law   gainLaw
		level float64
		want  float64
	}{
		{"compressor below threshold", comp, -30, 0},
		{"compressor above threshold", comp, -8, -9},
		{"expander above threshold", exp, -30, 0},
		{"expander below threshold", exp, -45, -10},
		{"expander floor", exp, -80, -20},
		{"soft knee lower edge", soft, -25, 0},
		{"soft knee upper edge", soft, -15, -3.75},
		{"soft knee middle", soft, -20, -1.875},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.law.gainDB(tt.level); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("gainDB(%g) = %g, want %g", tt.level, got, tt.want)
			}
		})
	}
}

func TestTimeCoeff(t *testing.T) {
	if got := timeCoeff(48000, 0); got != 0 {
		t.Errorf("zero time constant = %g, want 0", got)
	}
	// one time constant of a step reaches 1-1/e
	c := timeCoeff(1000, 10)
	env := envelope{attack: c, release: c}
	var v float64
	for range 10 {
		v = env.next(1)
	}
	if math.Abs(v-(1-1/math.E)) > 0.02 {
		t.Errorf("after one time constant env = %.3f, want %.3f", v, 1-1/math.E)
	}
}

func TestGateAttenuatesNoiseToRange(t *testing.T) {
	buf := generate(t, tone(500*time.Millisecond, 440, -20), hiss(time.Second, -60))
	orig := buf.Clone()
	g := build(t, FilterGate, P("threshold_db", Float(-45)))

	res, err := g.Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	out := res.Buffer.Samples[0]

	// voice above the threshold passes untouched once the detector settles
	for i := testRate / 20; i < testRate*45/100; i++ {
		if out[i] != orig.Samples[0][i] {
			t.Fatalf("sample %d changed in voice: %g -> %g", i, orig.Samples[0][i], out[i])
		}
	}

	// settled noise sits range_db (-24) below its input level
	start := testRate
	in := rmsDB(orig.Samples[0], start, buf.Frames())
	got := rmsDB(out, start, buf.Frames())
	if d := got - in; d < -25 || d > -23 {
		t.Errorf("noise reduced by %.2f dB, want -24 ± 1", d)
	}
}

func TestCompressorReducesLoudTone(t *testing.T) {
	loud := generate(t, tone(time.Second, 1000, -6))
	in := rmsDB(loud.Samples[0], testRate/2, loud.Frames())
	c := build(t, FilterCompressor,
		P("threshold_db", Float(-20)), P("ratio", Float(4)), P("knee_db", Float(0)),
		P("attack_ms", Float(5)), P("release_ms", Float(50)), P("makeup_db", Float(0)))

	res, err := c.Process(context.Background(), loud, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := rmsDB(res.Buffer.Samples[0], testRate/2, loud.Frames())
	if d := in - got; d < 5 || d > 11 {
		t.Errorf("gain reduction = %.2f dB, want 5..11", d)
	}
	if res.Analysis.Metrics["max_reduction_db"] >= -5 {
		t.Errorf("max_reduction_db = %g", res.Analysis.Metrics["max_reduction_db"])
	}

	quiet := generate(t, tone(time.Second, 1000, -40))
	want := quiet.Clone()
	res, err = c.Process(context.Background(), quiet, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Buffer.Equal(want) {
		t.Error("signal below threshold was changed")
	}
}

func TestCompressorAdaptiveDefaults(t *testing.T) {
	c := build(t, FilterCompressor, P("ratio", Float(6)))
	pc := &Context{Measurements: &AudioMeasurements{DynamicRange: 35, InputLRA: 16, NoiseFloor: -60}}
	s := c.(*Compressor).resolve(pc.measurements())
	if s.ratio != 6 {
		t.Errorf("explicit ratio overridden: %g", s.ratio)
	}
	if s.thresholdDB != compThresholdDynamic || s.attackMs != compAttackSlow {
		t.Errorf("tuned settings = %+v", s)
	}
}

func TestLimiterCeiling(t *testing.T) {
	buf := generate(t, tone(time.Second, 440, 0), hiss(ms(200), -3))
	l := build(t, FilterLimiter, P("ceiling_db", Float(-3)))

	res, err := l.Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	ceiling := audio.DBToLinear(-3)
	if p := peakOf(res.Buffer.Samples[0]); p > ceiling+1e-6 {
		t.Errorf("peak %.5f above ceiling %.5f", p, ceiling)
	}
}

func TestLimiterLeavesQuietSignal(t *testing.T) {
	buf := generate(t, tone(ms(300), 440, -20))
	want := buf.Clone()
	res, err := build(t, FilterLimiter).Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Buffer.Equal(want) {
		t.Error("limiter changed a signal below its ceiling")
	}
}

func TestDeesserLeavesLowBand(t *testing.T) {
	buf := generate(t, tone(time.Second, 500, -12))
	orig := buf.Clone()
	d := build(t, FilterDeesser, P("threshold_db", Float(-50)), P("ratio", Float(10)))

	res, err := d.Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// after the filter onset transient has released
	for i := testRate / 4; i < buf.Frames(); i++ {
		v := res.Buffer.Samples[0][i]
		if math.Abs(float64(v-orig.Samples[0][i])) > 1e-6 {
			t.Fatalf("sample %d: %g -> %g", i, orig.Samples[0][i], v)
		}
	}
}

func TestDeesserReducesSibilance(t *testing.T) {
	buf := generate(t, tone(time.Second, 6500, -12))
	in := rmsDB(buf.Samples[0], testRate/4, buf.Frames())
	d := build(t, FilterDeesser, P("threshold_db", Float(-50)), P("ratio", Float(10)))

	res, err := d.Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := rmsDB(res.Buffer.Samples[0], testRate/4, buf.Frames())
	if in-got < 3 {
		t.Errorf("sibilant tone reduced by %.2f dB, want > 3", in-got)
	}
	if res.Analysis.Metrics["max_reduction_db"] > -20 {
		t.Errorf("band reduction = %g dB", res.Analysis.Metrics["max_reduction_db"])
	}
}

func TestDeesserRejectsWideBand(t *testing.T) {
	_, err := DefaultRegistry().New(FilterDeesser, config(t, P("center_hz", Float(3000)), P("bandwidth_hz", Float(8000))))
	if err == nil {
		t.Fatal("band reaching below 0 Hz accepted")
	}
}

func TestMultibandSumIsFlat(t *testing.T) {
	for _, hz := range []float64{100, 1000, 8000} {
		buf := generate(t, tone(time.Second, hz, -12))
		in := rmsDB(buf.Samples[0], testRate/4, buf.Frames())
		m := build(t, FilterMultiband,
			P("low_threshold_db", Float(0)), P("mid_threshold_db", Float(0)), P("high_threshold_db", Float(0)))

		res, err := m.Process(context.Background(), buf, nil)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		got := rmsDB(res.Buffer.Samples[0], testRate/4, buf.Frames())
		if math.Abs(got-in) > 0.2 {
			t.Errorf("%g Hz: band sum changed level by %.3f dB", hz, got-in)
		}
	}
}

func TestMultibandCompressesMidBand(t *testing.T) {
	buf := generate(t, tone(time.Second, 1000, -6))
	in := rmsDB(buf.Samples[0], testRate/2, buf.Frames())
	m := build(t, FilterMultiband, P("mid_threshold_db", Float(-30)), P("mid_ratio", Float(4)))

	res, err := m.Process(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := rmsDB(res.Buffer.Samples[0], testRate/2, buf.Frames()); in-got < 6 {
		t.Errorf("mid band reduced by %.2f dB, want > 6", in-got)
	}
}

func TestMultibandRejectsCrossedCrossovers(t *testing.T) {
	_, err := DefaultRegistry().New(FilterMultiband,
		config(t, P("low_crossover_hz", Float(1500)), P("high_crossover_hz", Float(1000))))
	if err == nil {
		t.Fatal("inverted crossovers accepted")
	}
}
