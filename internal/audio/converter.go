package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TranscriptionSampleRate is the rate speech-to-text services handle best.
const TranscriptionSampleRate = 16000

// BytesToSamples decodes 16-bit little-endian PCM into samples
func BytesToSamples(pcmData []byte) ([]int16, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*2:]))
	}
	return samples, nil
}

// SamplesToBytes encodes samples as 16-bit little-endian PCM
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// Resample performs simple linear interpolation resampling.
// Interleaved channels are treated as one stream, so use it on mono audio.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 || inputRate <= 0 || outputRate <= 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// EncodeWAV wraps raw 16-bit PCM in a RIFF/WAVE container
func EncodeWAV(pcmData []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz x%d", sampleRate, channels)
	}
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcmData))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes(), nil
}

// PrepareForTranscription converts captured mono PCM to a 16 kHz WAV file.
// Multi-channel captures are sent at their native rate.
func PrepareForTranscription(pcmData []byte, sampleRate, channels int) ([]byte, int, error) {
	if channels == 1 && sampleRate != TranscriptionSampleRate {
		samples, err := BytesToSamples(pcmData)
		if err != nil {
			return nil, 0, err
		}
		pcmData = SamplesToBytes(Resample(samples, sampleRate, TranscriptionSampleRate))
		sampleRate = TranscriptionSampleRate
	}
	wav, err := EncodeWAV(pcmData, sampleRate, channels)
	if err != nil {
		return nil, 0, err
	}
	return wav, sampleRate, nil
}

// DurationSeconds returns the playback length of raw 16-bit PCM
func DurationSeconds(pcmBytes, sampleRate, channels int) float64 {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return float64(pcmBytes) / float64(2*channels*sampleRate)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
