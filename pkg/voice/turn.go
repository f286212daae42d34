package voice

import (
	"fmt"
	"sync"
	"time"
)

// turnHistory is how many completed turns Average considers.
const turnHistory = 100

// TurnStats is the timeline of one response turn. Every latency is
// measured from Start, the moment the utterance was finalized.
type TurnStats struct {
	Start      time.Time
	FirstToken time.Time
	FirstAudio time.Time
	End        time.Time

	Deltas int // generation deltas received
	Chunks int // audio chunks delivered
}

// TokenLatency is the wait for the first generated delta.
func (s TurnStats) TokenLatency() time.Duration { return since(s.Start, s.FirstToken) }

// AudioLatency is the wait for the first delivered audio chunk.
func (s TurnStats) AudioLatency() time.Duration { return since(s.Start, s.FirstAudio) }

// Total is the time until the last chunk was delivered.
func (s TurnStats) Total() time.Duration { return since(s.Start, s.End) }

func since(start, t time.Time) time.Duration {
	if start.IsZero() || t.IsZero() {
		return 0
	}
	return t.Sub(start)
}

// String renders the three latencies for logs, "---" for stages not reached.
func (s TurnStats) String() string {
	return fmt.Sprintf("%s LLM | %s TTS | %s TOTAL",
		ms(s.TokenLatency()), ms(s.AudioLatency()), ms(s.Total()))
}

func ms(d time.Duration) string {
	if d <= 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

// Turn records the timeline of the response in progress and keeps the
// recent completed ones. It is safe for concurrent use and implements
// speech.Marks.
type Turn struct {
	mu      sync.Mutex
	now     func() time.Time
	cur     TurnStats
	history []TurnStats
}

func NewTurn() *Turn {
	return &Turn{now: time.Now}
}

// Begin discards the current timeline and starts a new one.
func (t *Turn) Begin() {
	t.mu.Lock()
	t.cur = TurnStats{Start: t.now()}
	t.mu.Unlock()
}

// Delta counts a generation delta, stamping the first one.
func (t *Turn) Delta() {
	t.mu.Lock()
	if t.cur.Deltas == 0 {
		t.cur.FirstToken = t.now()
	}
	t.cur.Deltas++
	t.mu.Unlock()
}

// Chunk counts a delivered audio chunk, stamping the first one.
func (t *Turn) Chunk() {
	t.mu.Lock()
	if t.cur.Chunks == 0 {
		t.cur.FirstAudio = t.now()
	}
	t.cur.Chunks++
	t.mu.Unlock()
}

// Finish stamps the end of the turn and archives it.
func (t *Turn) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.End = t.now()
	if len(t.history) == turnHistory {
		t.history = t.history[1:]
	}
	t.history = append(t.history, t.cur)
}

func (t *Turn) SpeechEnd() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur.Start
}

func (t *Turn) FirstToken() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur.FirstToken
}

// Stats returns the timeline of the turn in progress, or of the last one
// finished.
func (t *Turn) Stats() TurnStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Average returns the mean token, audio and total latencies over the
// archived turns.
func (t *Turn) Average() (tok, audio, total time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return 0, 0, 0
	}
	for _, s := range t.history {
		tok += s.TokenLatency()
		audio += s.AudioLatency()
		total += s.Total()
	}
	n := time.Duration(len(t.history))
	return tok / n, audio / n, total / n
}
