package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame
}

// DefaultVADConfig returns a VAD configuration for 16 kHz capture
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,  // 200ms of silence
		FrameSize:       320, // 20ms at 16kHz
	}
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultVADConfig().FrameSize
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// Analysis summarises the voice activity in a finished capture.
type Analysis struct {
	Frames       int
	SpeechFrames int
	Utterances   int
	PeakRMS      float64
}

// Silent reports whether no frame crossed the energy threshold
func (a Analysis) Silent() bool {
	return a.SpeechFrames == 0
}

// Analyze runs a fresh detector over a complete 16-bit PCM capture.
// A trailing partial frame is still evaluated.
func Analyze(pcmData []byte, config *VADConfig) (Analysis, error) {
	samples, err := BytesToSamples(pcmData)
	if err != nil {
		return Analysis{}, err
	}

	detector := NewVADDetector(config)
	frameSize := detector.config.FrameSize

	var result Analysis
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[start:end]

		rms := CalculateRMS(frame)
		if rms > result.PeakRMS {
			result.PeakRMS = rms
		}

		_, started, _ := detector.ProcessFrame(frame)
		result.Frames++
		if rms > detector.config.EnergyThreshold {
			result.SpeechFrames++
		}
		if started {
			result.Utterances++
		}
	}
	return result, nil
}

// DetectSilence detects if audio samples represent silence
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
