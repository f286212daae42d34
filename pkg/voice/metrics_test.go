package voice

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestTurn_Timeline(t *testing.T) {
	turn := NewTurn()
	turn.now = steppingClock(time.Unix(1000, 0), 100*time.Millisecond)

	turn.Begin()  // t=0
	turn.Delta()  // t=100ms
	turn.Delta()  // counted only
	turn.Chunk()  // t=200ms
	turn.Chunk()  // counted only
	turn.Finish() // t=300ms

	st := turn.Stats()
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"token", st.TokenLatency(), 100 * time.Millisecond},
		{"audio", st.AudioLatency(), 200 * time.Millisecond},
		{"total", st.Total(), 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s latency = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if st.Deltas != 2 || st.Chunks != 2 {
		t.Errorf("counts = %d deltas, %d chunks", st.Deltas, st.Chunks)
	}
	if !turn.SpeechEnd().Equal(time.Unix(1000, 0)) {
		t.Errorf("SpeechEnd() = %v", turn.SpeechEnd())
	}
	if turn.FirstToken().Sub(turn.SpeechEnd()) != 100*time.Millisecond {
		t.Errorf("FirstToken() = %v", turn.FirstToken())
	}
}

func TestTurn_BeginResets(t *testing.T) {
	turn := NewTurn()
	turn.Begin()
	turn.Delta()
	turn.Begin()

	if !turn.FirstToken().IsZero() {
		t.Error("Begin should clear the first token")
	}
	if turn.Stats().Deltas != 0 {
		t.Error("Begin should clear the counts")
	}
}

func TestTurn_Average(t *testing.T) {
	turn := NewTurn()
	if _, _, total := turn.Average(); total != 0 {
		t.Errorf("empty Average() total = %v", total)
	}

	for _, step := range []time.Duration{100 * time.Millisecond, 300 * time.Millisecond} {
		turn.now = steppingClock(time.Unix(0, 0), step)
		turn.Begin()
		turn.Finish()
	}

	if _, _, total := turn.Average(); total != 200*time.Millisecond {
		t.Errorf("Average() total = %v, want 200ms", total)
	}
}

func TestTurnStats_String(t *testing.T) {
	start := time.Unix(0, 0)
	st := TurnStats{Start: start, FirstToken: start.Add(250 * time.Millisecond)}
	got := st.String()
	if !strings.HasPrefix(got, "250ms LLM") || !strings.Contains(got, "---ms TTS") {
		t.Errorf("String() = %q", got)
	}
}

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.ActiveSessions.Inc()
	c.Sessions.WithLabelValues(outcomeCompleted).Inc()
	c.StageErrors.WithLabelValues(string(StageSynthesis)).Add(2)
	c.PaceDelay.Observe(0.7)

	if v := testutil.ToFloat64(c.StageErrors.WithLabelValues(string(StageSynthesis))); v != 2 {
		t.Errorf("stage errors = %v, want 2", v)
	}

	n, err := testutil.GatherAndCount(reg, "pipeline_active_sessions", "pipeline_pace_delay_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("gathered %d series, want 2", n)
	}
}

func TestCollectors_Unregistered(t *testing.T) {
	// Two unregistered sets must not collide.
	a := NewCollectors(nil)
	b := NewCollectors(nil)
	a.Chunks.Inc()
	if testutil.ToFloat64(b.Chunks) != 0 {
		t.Error("collectors should be independent")
	}
}
