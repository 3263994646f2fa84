package whiteroom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wav returns the buffer as a stereo .wav file at the given sample rate,
// either as 16-bit PCM or 32-bit float samples.
func (buf AudioBuffer) Wav(sampleRate int, pcm16 bool) ([]byte, error) {
	out := new(bytes.Buffer)
	wavHeader(len(buf)*2, sampleRate, pcm16, out)
	if err := rawToBuffer(buf, pcm16, out); err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return out.Bytes(), nil
}

// Raw returns the buffer as headerless interleaved samples.
func (buf AudioBuffer) Raw(pcm16 bool) ([]byte, error) {
	out := new(bytes.Buffer)
	if err := rawToBuffer(buf, pcm16, out); err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return out.Bytes(), nil
}

func rawToBuffer(data AudioBuffer, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data)*2)
		for i, frame := range data {
			int16data[i*2] = int16(clamp(int(frame[0]*math.MaxInt16), math.MinInt16, math.MaxInt16))
			int16data[i*2+1] = int16(clamp(int(frame[1]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 stereo audio.
// bufferLength is the total number of interleaved samples (L + R).
func wavHeader(bufferLength int, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))            // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength)) // sample length
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
