package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"gopkg.in/hraban/opus.v2"
)

// opusRate is the rate libopusfile always decodes to.
const opusRate = 48000

// Duration decodes enough of audio to report its playback duration.
// Empty audio has zero duration.
func Duration(audio []byte, format AudioFormat) (time.Duration, error) {
	if len(audio) == 0 {
		return 0, nil
	}

	enc := format.Encoding
	switch {
	case enc.IsPCM():
		rate := format.SampleRate
		if rate <= 0 {
			rate = SampleRateFromEncoding(enc)
		}
		return pcmDuration(len(audio), rate, max(format.Channels, 1), 2), nil
	case enc == EncodingULaw:
		return pcmDuration(len(audio), 8000, max(format.Channels, 1), 1), nil
	case enc == EncodingWAV:
		return wavDuration(audio)
	case enc == EncodingOpus:
		return opusDuration(audio)
	case enc == EncodingMP3, enc == "":
		return mp3Duration(audio)
	default:
		return 0, fmt.Errorf("%w: encoding %q", ErrUnknownDuration, enc)
	}
}

func pcmDuration(n, rate, channels, sampleBytes int) time.Duration {
	frames := int64(n / (channels * sampleBytes))
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// mp3Duration uses the decoded length, which go-mp3 reports in bytes of
// 16-bit stereo output.
func mp3Duration(audio []byte) (time.Duration, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0, fmt.Errorf("%w: mp3: %v", ErrUnknownDuration, err)
	}
	rate := d.SampleRate()
	if rate <= 0 {
		return 0, fmt.Errorf("%w: mp3 sample rate %d", ErrUnknownDuration, rate)
	}

	length := d.Length()
	if length < 0 {
		length, err = io.Copy(io.Discard, d)
		if err != nil {
			return 0, fmt.Errorf("%w: mp3: %v", ErrUnknownDuration, err)
		}
	}
	return time.Duration(length/4) * time.Second / time.Duration(rate), nil
}

// wavDuration walks the RIFF chunks to the data chunk and divides its size
// by the byte rate from fmt. A streamed header with an unset data size
// falls back to the bytes actually present.
func wavDuration(audio []byte) (time.Duration, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: invalid WAV header", ErrUnknownDuration)
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := binary.LittleEndian.Uint32(audio[pos+4 : pos+8])
		body := pos + 8

		switch id {
		case "fmt ":
			if body+12 > len(audio) {
				return 0, fmt.Errorf("%w: truncated fmt chunk", ErrUnknownDuration)
			}
			byteRate = binary.LittleEndian.Uint32(audio[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%w: data before fmt chunk", ErrUnknownDuration)
			}
			avail := uint32(len(audio) - body)
			if size == 0 || size == 0xFFFFFFFF || size > avail {
				size = avail
			}
			return time.Duration(size) * time.Second / time.Duration(byteRate), nil
		}

		// Chunks are word aligned.
		pos = body + int(size) + int(size&1)
	}
	return 0, fmt.Errorf("%w: missing WAV data chunk", ErrUnknownDuration)
}

// opusDuration decodes the Ogg-Opus stream and counts samples per channel.
func opusDuration(audio []byte) (time.Duration, error) {
	s, err := opus.NewStream(bytes.NewReader(audio))
	if err != nil {
		return 0, fmt.Errorf("%w: opus: %v", ErrUnknownDuration, err)
	}
	defer s.Close()

	// 120 ms of stereo at 48 kHz, the largest Opus packet.
	pcm := make([]int16, 5760*2)
	var samples int64
	for {
		n, err := s.Read(pcm)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: opus: %v", ErrUnknownDuration, err)
		}
		samples += int64(n)
	}
	return time.Duration(samples) * time.Second / opusRate, nil
}
