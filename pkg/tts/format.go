package tts

// Encoding names an audio output format using the provider's
// codec_samplerate[_bitrate] convention.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"

	EncodingMP3  Encoding = "mp3_44100_128"
	EncodingOpus Encoding = "opus" // Ogg-encapsulated
	EncodingWAV  Encoding = "wav"
	EncodingULaw Encoding = "ulaw_8000"
)

type encodingInfo struct {
	rate int
	mime string
	pcm  bool // headerless little-endian PCM16
}

var encodings = map[Encoding]encodingInfo{
	EncodingPCM16: {16000, "audio/pcm", true},
	EncodingPCM22: {22050, "audio/pcm", true},
	EncodingPCM24: {24000, "audio/pcm", true},
	EncodingPCM44: {44100, "audio/pcm", true},
	EncodingMP3:   {44100, "audio/mpeg", false},
	EncodingOpus:  {48000, "audio/ogg", false},
	EncodingWAV:   {24000, "audio/wav", false},
	EncodingULaw:  {8000, "audio/basic", false},
}

// IsPCM reports whether the encoding is headerless PCM16.
func (e Encoding) IsPCM() bool { return encodings[e].pcm }

// MIME returns the content type for the encoding, audio/mpeg when unknown.
func (e Encoding) MIME() string {
	if info, ok := encodings[e]; ok {
		return info.mime
	}
	return "audio/mpeg"
}

// SampleRateFromEncoding returns the nominal sample rate of enc, 24 kHz
// when unknown.
func SampleRateFromEncoding(enc Encoding) int {
	if info, ok := encodings[enc]; ok {
		return info.rate
	}
	return 24000
}

// Format returns the mono 16-bit format providers produce for e.
func (e Encoding) Format() AudioFormat {
	return AudioFormat{Encoding: e, SampleRate: SampleRateFromEncoding(e), Channels: 1, BitDepth: 16}
}

// AudioFormat describes encoded audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int
	BitDepth   int // PCM only
}
