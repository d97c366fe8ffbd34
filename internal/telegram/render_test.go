package telegram

import (
	"testing"
	"time"

	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"

	"github.com/sebdah/goldie/v2"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

var sampleCounters = models.Counters{
	Successful: 100,
	Failed:     2,
	Duplicate:  5,
	Deleted:    10,
	Skipped:    1,
	Filtered:   2,
}

func TestRenderStatusGolden(t *testing.T) {
	g := newGoldie(t)

	running := migration.Snapshot{
		Running:          true,
		SessionID:        "42",
		Source:           "@old_channel",
		Target:           "@new_channel",
		Status:           models.SessionStatusForwarding,
		StartMessageID:   1,
		CurrentMessageID: 121,
		LastMessageID:    120,
		EndMessageID:     400,
		Counters:         sampleCounters,
		Elapsed:          12*time.Minute + 5*time.Second,
		SpeedPerMinute:   9.92,
		FloodDelay:       1500 * time.Millisecond,
		RateLimitCount:   3,
	}
	g.Assert(t, "status_running", []byte(renderStatus(running)))
	g.Assert(t, "status_idle", []byte(renderStatus(migration.Snapshot{})))
}

func TestRenderEventGolden(t *testing.T) {
	g := newGoldie(t)

	g.Assert(t, "event_started", []byte(renderEvent(migration.Event{
		Type:         migration.EventSessionStarted,
		SessionID:    "42",
		Source:       "@old_channel",
		Target:       "@new_channel",
		EndMessageID: 400,
	})))

	g.Assert(t, "event_ended", []byte(renderEvent(migration.Event{
		Type:          migration.EventSessionEnded,
		SessionID:     "42",
		Status:        models.SessionStatusCompleted,
		Counters:      sampleCounters,
		LastMessageID: 400,
	})))

	g.Assert(t, "event_critical", []byte(renderEvent(migration.Event{
		Type:          migration.EventCriticalError,
		SessionID:     "42",
		LastMessageID: 49,
		Description:   "permanently denied: Forbidden, bot was kicked",
	})))
}

func TestRenderFailedGolden(t *testing.T) {
	g := newGoldie(t)

	records := []*models.FailedMessage{
		{SessionID: "42", MessageID: 78, ContentType: "video", RetryCount: 3, Error: "connection reset"},
		{SessionID: "42", MessageID: 77, FileSize: 2_200_000_000, Error: "file too large"},
	}
	g.Assert(t, "failed_list", []byte(renderFailed("42", records)))
}

func TestRenderStatisticsGolden(t *testing.T) {
	g := newGoldie(t)

	g.Assert(t, "statistics", []byte(renderStatistics(&models.Statistics{
		TotalForwarded:       300,
		TotalFailed:          12,
		TotalSessions:        4,
		AverageSuccessPerRun: 75,
		SessionsLast24Hours:  2,
	})))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "zero", in: 0, want: "0秒"},
		{name: "negative", in: -time.Second, want: "0秒"},
		{name: "minutes", in: 3*time.Minute + 4*time.Second, want: "3分钟 4秒"},
		{name: "hours", in: 2 * time.Hour, want: "2小时"},
		{name: "days", in: 26*time.Hour + time.Minute, want: "1天 2小时 1分钟"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEstimateRemaining(t *testing.T) {
	base := migration.Snapshot{Running: true, StartMessageID: 1, LastMessageID: 100, EndMessageID: 400, SpeedPerMinute: 30}

	tests := []struct {
		name   string
		mutate func(s *migration.Snapshot)
		want   time.Duration
		ok     bool
	}{
		{name: "bounded range", mutate: func(*migration.Snapshot) {}, want: 10 * time.Minute, ok: true},
		{name: "unbounded range", mutate: func(s *migration.Snapshot) { s.EndMessageID = 0 }},
		{name: "no speed yet", mutate: func(s *migration.Snapshot) { s.SpeedPerMinute = 0 }},
		{name: "not running", mutate: func(s *migration.Snapshot) { s.Running = false }},
		{name: "range done", mutate: func(s *migration.Snapshot) { s.LastMessageID = 400 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base
			tt.mutate(&snap)
			got, ok := estimateRemaining(snap)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("expected (%s, %v), got (%s, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name        string
		done, total int64
		want        string
	}{
		{name: "empty total", done: 5, total: 0, want: ""},
		{name: "half", done: 5, total: 10, want: "[█████░░░░░] 5/10 (50.0%)"},
		{name: "overflow clamps", done: 12, total: 10, want: "[██████████] 10/10 (100.0%)"},
		{name: "negative clamps", done: -3, total: 10, want: "[░░░░░░░░░░] 0/10 (0.0%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressBar(tt.done, tt.total, 10); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
