package transcode

import (
	"encoding/binary"

	"github.com/book-expert/tts-gateway/internal/core"
)

// RIFF layout offsets and sizes.
const (
	riffHeaderSize   = 12
	chunkHeaderSize  = 8
	channelsOffset   = 2
	sampleRateOffset = 4
	byteRateOffset   = 8
)

// wavFormat holds the fields read from a RIFF fmt chunk.
type wavFormat struct {
	channels   int
	sampleRate int
	byteRate   uint32
	dataSize   uint32
}

// Duration returns the audio duration in seconds when it can be derived
// from the payload. Only WAV containers carry enough header information to
// compute it without decoding; other formats report zero.
func Duration(data []byte, format core.AudioFormat) float64 {
	if format != core.FormatWAV {
		return 0
	}

	return wavDuration(data)
}

// wavDuration derives the duration from the fmt chunk's byte rate and the
// data chunk's payload size.
func wavDuration(data []byte) float64 {
	format, ok := parseWAV(data)
	if !ok || format.byteRate == 0 || format.dataSize == 0 {
		return 0
	}

	return float64(format.dataSize) / float64(format.byteRate)
}

// parseWAV walks the RIFF chunk list, collecting the fmt chunk fields and
// the data chunk size.
func parseWAV(data []byte) (wavFormat, bool) {
	var format wavFormat

	if len(data) < riffHeaderSize {
		return format, false
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return format, false
	}

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + chunkHeaderSize

		switch chunkID {
		case "fmt ":
			if body+byteRateOffset+4 <= len(data) {
				format.channels = int(binary.LittleEndian.Uint16(
					data[body+channelsOffset : body+channelsOffset+2],
				))
				format.sampleRate = int(binary.LittleEndian.Uint32(
					data[body+sampleRateOffset : body+sampleRateOffset+4],
				))
				format.byteRate = binary.LittleEndian.Uint32(
					data[body+byteRateOffset : body+byteRateOffset+4],
				)
			}
		case "data":
			format.dataSize = chunkSize
		}

		// Chunks are word-aligned.
		offset = body + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++
		}
	}

	return format, true
}
