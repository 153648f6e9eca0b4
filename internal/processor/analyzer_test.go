package processor

import (
	"math"
	"testing"
	"time"
)

func TestMeasureTone(t *testing.T) {
	buf := generate(t, signal{dur: 3 * time.Second, toneHz: 1000, toneDB: -20, noiseDB: -70})
	m := Measure(buf, nil)

	if math.Abs(m.InputI-(-23)) > 0.3 {
		t.Errorf("InputI = %.2f, want -23", m.InputI)
	}
	if math.Abs(m.PeakLevel-(-20)) > 0.1 {
		t.Errorf("PeakLevel = %.2f, want -20", m.PeakLevel)
	}
	if math.Abs(m.RMSLevel-(-23.01)) > 0.1 {
		t.Errorf("RMSLevel = %.2f, want -23", m.RMSLevel)
	}
	if math.Abs(m.SpectralCentroid-1000) > 50 {
		t.Errorf("SpectralCentroid = %.0f Hz, want ~1000", m.SpectralCentroid)
	}
	if math.Abs(m.SpectralRolloff-1000) > 50 {
		t.Errorf("SpectralRolloff = %.0f Hz, want ~1000", m.SpectralRolloff)
	}
	if m.InputTP < m.PeakLevel-0.01 {
		t.Errorf("true peak %.2f below sample peak %.2f", m.InputTP, m.PeakLevel)
	}
}

func TestNewContextFindsSilence(t *testing.T) {
	buf := generate(t,
		hiss(time.Second, -70),
		tone(2*time.Second, 300, -20),
		hiss(1500*time.Millisecond, -70),
	)
	pc, err := NewContext(buf)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if pc.Measurements == nil || pc.Voice == nil {
		t.Fatal("context missing measurements")
	}
	if pc.NoiseFloorDB > -60 {
		t.Errorf("noise floor %.1f dB, want near -70", pc.NoiseFloorDB)
	}
	longest, ok := pc.LongestSilence()
	if !ok {
		t.Fatal("no silence found")
	}
	if d := longest.End - longest.Start; d < time.Second {
		t.Errorf("longest silence %v, want the 1.5 s tail", d)
	}
	if m := pc.Measurements; m.DynamicRange <= 0 || m.NoiseReductionHeadroom <= 0 {
		t.Errorf("derived measurements not set: %+v", m)
	}
}

func TestMeasurementsFallback(t *testing.T) {
	var pc *Context
	if pc.measurements() == nil {
		t.Fatal("nil context should fall back to defaults")
	}
	if (&Context{}).measurements().NoiseFloor != noiseFloorTypical {
		t.Error("empty context should use default measurements")
	}
}

func TestMeasureMainsHum(t *testing.T) {
	humming := signal{dur: 2 * time.Second, toneHz: 60, toneDB: -50, noiseDB: -70}
	buf := generate(t, humming, tone(2*time.Second, 300, -20), humming)
	pc, err := NewContext(buf)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if m := pc.Measurements; m.MainsHz != 60 || m.MainsHum < -3 {
		t.Errorf("hum = %.1f dB at %d Hz, want near 0 dB at 60 Hz", m.MainsHum, m.MainsHz)
	}

	clean := generate(t, hiss(2*time.Second, -70), tone(2*time.Second, 300, -20), hiss(2*time.Second, -70))
	pc, err = NewContext(clean)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if m := pc.Measurements; m.MainsHum > -20 {
		t.Errorf("hum = %.1f dB in white noise, want well below -20 dB", m.MainsHum)
	}

	if got := Measure(clean, nil).MainsHum; got != -120 {
		t.Errorf("hum without a voice map = %.1f, want -120", got)
	}
}
