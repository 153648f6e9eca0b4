package processor

import "math"

// Adaptive tuning constants.
// These thresholds and limits control how processors adapt to input measurements
// when a preset leaves a parameter unset.
const (
	// Highpass frequency tuning
	highpassMinFreq         = 60.0  // Hz - dark/warm voice cutoff
	highpassDefaultFreq     = 80.0  // Hz - normal voice cutoff
	highpassBrightFreq      = 100.0 // Hz - bright voice cutoff
	highpassMaxFreq         = 120.0 // Hz - maximum to preserve voice fundamentals
	highpassBoostModerate   = 20.0  // Hz - added for moderate noise reduction needs
	highpassBoostAggressive = 40.0  // Hz - added for heavy noise reduction needs

	// Lowpass frequency tuning
	lowpassDefaultFreq = 16000.0 // Hz - above any useful voice content
	lowpassLimitedFreq = 12000.0 // Hz - for takes with limited HF extension
	lowpassMinFreq     = 8000.0  // Hz - never cut into sibilance below this

	// Spectral centroid thresholds (Hz) for voice brightness classification
	centroidBright     = 6000.0 // Above: bright voice
	centroidNormal     = 4000.0 // Above: normal voice, below: dark voice
	centroidVeryBright = 7000.0 // Threshold for de-esser intensity

	// Spectral rolloff thresholds (Hz) for HF content classification
	rolloffNoSibilance = 6000.0  // Below: no sibilance expected
	rolloffLimited     = 8000.0  // Below: limited HF extension
	rolloffExtensive   = 12000.0 // Above: extensive HF content

	// LUFS gap thresholds for adaptive processing intensity
	lufsGapModerate   = 15.0 // dB - moderate gain required
	lufsGapAggressive = 25.0 // dB - aggressive processing needed

	// Spectral subtraction factor
	noiseReductionBase = 1.0 // clean recordings
	noiseReductionMin  = 0.5 // always some reduction
	noiseReductionMax  = 3.0 // beyond this speech turns watery
	noiseReductionStep = 0.5 // added per LUFS gap tier

	// De-esser intensity levels
	deessIntensityBright = 0.6 // Bright voice base intensity
	deessIntensityNormal = 0.5 // Normal voice base intensity
	deessIntensityDark   = 0.4 // Dark voice base intensity
	deessIntensityMax    = 0.8 // Maximum intensity limit
	deessIntensityMin    = 0.3 // Minimum before disabling

	// De-esser threshold mapping: full intensity sits deessThresholdSpan
	// below deessThresholdTop
	deessThresholdTop  = -15.0
	deessThresholdSpan = 30.0

	// Gate threshold safety bounds (applied after data-driven calculation)
	gateThresholdMinDB = -70.0 // dB - professional studio floor
	gateThresholdMaxDB = -25.0 // dB - never gate above this (would cut speech)

	// Gate offset above the noise floor, by recording quality
	gateOffsetClean   = 10.0
	gateOffsetTypical = 8.0
	gateOffsetNoisy   = 6.0

	// Noise floor quality thresholds
	noiseFloorClean   = -60.0 // dBFS - very clean recording
	noiseFloorTypical = -50.0 // dBFS - typical podcast
	noiseFloorNoisy   = -40.0 // dBFS - noisy recording

	// Compression parameters
	compDynamicRangeHigh = 30.0 // dB - very dynamic content
	compDynamicRangeMod  = 20.0 // dB - moderately dynamic
	compLRAWide          = 15.0 // LU - wide loudness range
	compLRAModerate      = 10.0 // LU - moderate loudness range

	// Compression ratios
	compRatioDynamic    = 2.0 // For very dynamic content
	compRatioModerate   = 3.0 // For typical podcasts
	compRatioCompressed = 4.0 // For already compressed content

	// Compression thresholds (dB)
	compThresholdDynamic    = -16.0
	compThresholdModerate   = -18.0
	compThresholdCompressed = -20.0

	// Compression makeup gain (dB)
	compMakeupDynamic    = 1.0
	compMakeupModerate   = 2.0
	compMakeupCompressed = 3.0

	// Compression timing (ms)
	compAttackFast  = 15
	compAttackMed   = 20
	compAttackSlow  = 25
	compReleaseFast = 80
	compReleaseMed  = 100
	compReleaseSlow = 150

	// Default fallback values for sanitization
	defaultHighpassFreq   = 80.0
	defaultNoiseReduction = 1.0
	defaultCompRatio      = 2.5
	defaultCompThreshold  = -20.0
	defaultCompMakeup     = 3.0
	defaultGateThreshold  = -50.0
)

// calculateLUFSGap returns the dB difference between target and input LUFS.
// Returns 0.0 if input is not measured.
func calculateLUFSGap(targetI, inputI float64) float64 {
	if inputI <= loudnessAbsGate {
		return 0.0
	}
	return targetI - inputI
}

// tuneHighpassFreq adapts the highpass cutoff to:
// - Spectral centroid (voice brightness/warmth)
// - LUFS gap (how much gain will lift low-frequency room noise later)
func tuneHighpassFreq(m *AudioMeasurements) float64 {
	if m.SpectralCentroid <= 0 {
		return defaultHighpassFreq
	}

	var freq float64
	switch {
	case m.SpectralCentroid > centroidBright:
		// voice energy is well above 100Hz
		freq = highpassBrightFreq
	case m.SpectralCentroid > centroidNormal:
		freq = highpassDefaultFreq
	default:
		// preserve warmth and body
		freq = highpassMinFreq
	}

	switch gap := calculateLUFSGap(NormTargetLUFS, m.InputI); {
	case gap > lufsGapAggressive:
		freq += highpassBoostAggressive
	case gap > lufsGapModerate:
		freq += highpassBoostModerate
	}

	return sanitizeFloat(math.Min(freq, highpassMaxFreq), defaultHighpassFreq)
}

// tuneLowpassFreq places the lowpass above the take's useful HF content.
func tuneLowpassFreq(m *AudioMeasurements, sampleRate int) float64 {
	freq := lowpassDefaultFreq
	if m.SpectralRolloff > 0 && m.SpectralRolloff < rolloffLimited {
		freq = lowpassLimitedFreq
	}
	nyquist := float64(sampleRate) / 2
	return clamp(freq, lowpassMinFreq, 0.9*nyquist)
}

// tuneNoiseReduction picks the spectral subtraction factor.
//
// Gain applied later lifts the noise with the speech, so quiet takes need
// more reduction now. The gap between speech level and noise floor scales
// the result: noise close to speech means artefacts, so back off.
func tuneNoiseReduction(m *AudioMeasurements) float64 {
	reduction := noiseReductionBase
	switch gap := calculateLUFSGap(NormTargetLUFS, m.InputI); {
	case gap > lufsGapAggressive:
		reduction += 2 * noiseReductionStep
	case gap > lufsGapModerate:
		reduction += noiseReductionStep
	}

	if m.NoiseReductionHeadroom > 0 {
		switch {
		case m.NoiseReductionHeadroom < 15.0:
			// noisy recording - be conservative to avoid speech artifacts
			reduction *= 0.7
		case m.NoiseReductionHeadroom >= 30.0:
			reduction *= 1.2
		}
	}
	return clamp(sanitizeFloat(reduction, defaultNoiseReduction), noiseReductionMin, noiseReductionMax)
}

// tuneDeesser returns the de-esser threshold and the intensity it came from.
// Uses both spectral centroid (energy concentration) and rolloff (HF
// extension) to judge the likelihood of harsh sibilance. Zero intensity
// parks the threshold at 0 dBFS, which leaves the band untouched.
func tuneDeesser(m *AudioMeasurements) (thresholdDB, intensity float64) {
	switch {
	case m.SpectralCentroid > 0 && m.SpectralRolloff > 0:
		intensity = deesserIntensityFull(m)
	case m.SpectralCentroid > 0:
		intensity = deesserBaseIntensity(m.SpectralCentroid)
	}
	if intensity <= 0 {
		return 0, 0
	}
	return deessThresholdTop - deessThresholdSpan*intensity, intensity
}

func deesserBaseIntensity(centroid float64) float64 {
	switch {
	case centroid > centroidVeryBright:
		return deessIntensityBright
	case centroid > centroidBright:
		return deessIntensityNormal
	default:
		return deessIntensityDark
	}
}

// deesserIntensityFull refines the centroid baseline by HF extension.
func deesserIntensityFull(m *AudioMeasurements) float64 {
	base := deesserBaseIntensity(m.SpectralCentroid)
	switch {
	case m.SpectralRolloff < rolloffNoSibilance:
		// no sibilance expected
		return 0
	case m.SpectralRolloff < rolloffLimited:
		if v := base * 0.7; v >= deessIntensityMin {
			return v
		}
		return 0
	case m.SpectralRolloff > rolloffExtensive:
		return math.Min(base*1.2, deessIntensityMax)
	default:
		return base
	}
}

// tuneGateThreshold places the gate above the noise floor, with a wider
// margin on clean recordings, kept below the quietest voiced frames.
func tuneGateThreshold(m *AudioMeasurements) float64 {
	var offset float64
	switch {
	case m.NoiseFloor < noiseFloorClean:
		offset = gateOffsetClean
	case m.NoiseFloor < noiseFloorTypical:
		offset = gateOffsetTypical
	default:
		offset = gateOffsetNoisy
	}
	threshold := m.NoiseFloor + offset
	if m.RMSTrough > m.NoiseFloor {
		// never above the quietest speech
		threshold = math.Min(threshold, (m.NoiseFloor+m.RMSTrough)/2+offset/2)
	}
	return clamp(sanitizeFloat(threshold, defaultGateThreshold), gateThresholdMinDB, gateThresholdMaxDB)
}

// tuneCompression adapts dynamics processing based on:
// - Dynamic range (how much variation in loud/quiet parts)
// - Loudness range (LRA - transient characteristics)
func tuneCompression(m *AudioMeasurements) compressorSettings {
	s := compressorSettings{
		thresholdDB: defaultCompThreshold,
		ratio:       defaultCompRatio,
		makeupDB:    defaultCompMakeup,
	}

	switch {
	case m.DynamicRange <= 0:
		// no measurement - keep defaults
	case m.DynamicRange > compDynamicRangeHigh:
		// very dynamic content (expressive delivery)
		s.ratio, s.thresholdDB, s.makeupDB = compRatioDynamic, compThresholdDynamic, compMakeupDynamic
	case m.DynamicRange > compDynamicRangeMod:
		s.ratio, s.thresholdDB, s.makeupDB = compRatioModerate, compThresholdModerate, compMakeupModerate
	default:
		// already compressed/consistent
		s.ratio, s.thresholdDB, s.makeupDB = compRatioCompressed, compThresholdCompressed, compMakeupCompressed
	}

	switch {
	case m.InputLRA > compLRAWide:
		// wide loudness range - preserve transients
		s.attackMs, s.releaseMs = compAttackSlow, compReleaseSlow
	case m.InputLRA > compLRAModerate:
		s.attackMs, s.releaseMs = compAttackMed, compReleaseMed
	default:
		s.attackMs, s.releaseMs = compAttackFast, compReleaseFast
	}

	// noisy takes pump audibly; ease off
	if m.NoiseFloor >= noiseFloorNoisy {
		s.ratio = math.Max(compRatioDynamic, s.ratio-1)
	}

	s.ratio = sanitizeFloat(s.ratio, defaultCompRatio)
	s.thresholdDB = sanitizeFloat(s.thresholdDB, defaultCompThreshold)
	s.makeupDB = sanitizeFloat(s.makeupDB, defaultCompMakeup)
	return s
}

// sanitizeFloat returns defaultVal if val is NaN or Inf
func sanitizeFloat(val, defaultVal float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return defaultVal
	}
	return val
}

// clamp restricts val to the range [min, max]
func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
