package processor

// FilterID identifies a processor in the chain
type FilterID string

// Processor identifiers
const (
	// Band filters
	FilterHighpass FilterID = "highpass"
	FilterLowpass  FilterID = "lowpass"

	// Restoration
	FilterNoiseReduction FilterID = "noise_reduction" // STFT spectral subtraction
	FilterDeclick        FilterID = "declick"         // second-derivative click repair
	FilterDepop          FilterID = "depop"           // low-frequency plosive suppression

	// Dynamics
	FilterGate       FilterID = "gate"       // downward expander with range floor
	FilterCompressor FilterID = "compressor" // broadband downward compressor
	FilterLimiter    FilterID = "limiter"    // peak limiter, instant attack
	FilterDeesser    FilterID = "deesser"    // split-band sibilance compressor
	FilterMultiband  FilterID = "multiband"  // three-band compressor, LR4 crossovers

	// Tone
	FilterEQ FilterID = "eq" // parametric EQ, presets or explicit bands

	// Loudness
	FilterLoudness FilterID = "loudness" // BS.1770 integrated loudness normaliser

	// Pass 2
	FilterDeadAirTrim      FilterID = "dead_air_trim"     // affects timing
	FilterSilenceAttenuate FilterID = "silence_attenuate" // duration preserving
)

// DefaultPass1Order is the recommended full Pass-1 chain. Presets always list
// their own stages; the podcast preset runs exactly this order.
// Order rationale:
//   - Declick/depop first: transients would otherwise trigger the gate and compressor
//   - Highpass: removes rumble before noise profiling
//   - NoiseReduction: profile taken from the leading room tone
//   - Gate: cleans up inter-phrase noise after denoising lowers the floor
//   - EQ then Compressor: compression responds to the shaped spectrum
//   - Deesser: after compression, which emphasises sibilance
//   - Limiter then Loudness: the normaliser respects the true-peak ceiling
var DefaultPass1Order = []FilterID{
	FilterDeclick,
	FilterDepop,
	FilterHighpass,
	FilterNoiseReduction,
	FilterGate,
	FilterEQ,
	FilterCompressor,
	FilterDeesser,
	FilterLimiter,
	FilterLoudness,
}

// Normalisation target and tolerance
const (
	// NormTargetLUFS is the podcast loudness standard.
	NormTargetLUFS = -16.0

	// NormTargetTP is the default true-peak ceiling (dBTP).
	NormTargetTP = -1.0

	// NormToleranceLU is the acceptable deviation from target.
	NormToleranceLU = 0.5
)

var builtinFactories = map[FilterID]Factory{
	FilterHighpass:         newHighpass,
	FilterLowpass:          newLowpass,
	FilterNoiseReduction:   newNoiseReducer,
	FilterDeclick:          newDeclicker,
	FilterDepop:            newDepopper,
	FilterGate:             newGate,
	FilterCompressor:       newCompressor,
	FilterLimiter:          newLimiter,
	FilterDeesser:          newDeesser,
	FilterMultiband:        newMultiband,
	FilterEQ:               newEQ,
	FilterLoudness:         newLoudnessNormaliser,
	FilterDeadAirTrim:      newDeadAirTrim,
	FilterSilenceAttenuate: newSilenceAttenuate,
}
