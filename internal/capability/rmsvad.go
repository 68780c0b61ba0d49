package capability

import (
	"context"
	"encoding/binary"
	"math"
)

// RMSVAD is a pure-Go VoiceDetector based on RMS energy with hysteresis:
// separate enter/exit thresholds and consecutive-frame debounce so the
// voice flag does not flicker at word boundaries. Suitable as a default
// when no external VAD model is configured. Expects 16-bit little-endian
// PCM frames.
type RMSVAD struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewRMSVAD returns a detector tuned for 16kHz 20ms frames.
func NewRMSVAD() *RMSVAD {
	return &RMSVAD{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,  // ~60ms to start
		silenceFrames:    30, // ~600ms to end
	}
}

// DetectVoiceActivity implements VoiceDetector. It never fails; the error
// return exists to satisfy the capability contract.
func (v *RMSVAD) DetectVoiceActivity(_ context.Context, frame []byte) (bool, error) {
	level := rmsLevel(frame)

	if v.inSpeech {
		if level < v.silenceThreshold {
			v.silenceCount++
			v.speechCount = 0
			if v.silenceCount >= v.silenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
	} else {
		if level >= v.speechThreshold {
			v.speechCount++
			v.silenceCount = 0
			if v.speechCount >= v.speechFrames {
				v.inSpeech = true
				v.speechCount = 0
			}
		} else {
			v.speechCount = 0
		}
	}

	return v.inSpeech, nil
}

// Reset clears hysteresis state, e.g. between utterances after an abort.
func (v *RMSVAD) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

// rmsLevel computes normalized RMS energy of a 16-bit LE PCM frame.
func rmsLevel(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		f := float64(s) / math.MaxInt16
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
