package analysis

import (
	"testing"
	"time"
)

func TestCalculateTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   Trend
	}{
		{"empty", nil, TrendInsufficientData},
		{"two samples", []float64{50, 90}, TrendInsufficientData},
		{"improving", []float64{50, 50, 50, 90, 90, 90}, TrendImproving},
		{"declining", []float64{90, 90, 90, 50, 50, 50}, TrendDeclining},
		{"stable", []float64{70, 70, 70, 72, 71, 73}, TrendStable},
		{"exactly three", []float64{60, 60, 60}, TrendStable},
		{"boundary not crossed", []float64{70, 70, 70, 75, 75, 75}, TrendStable},
	}

	for _, tc := range tests {
		if got := calculateTrend(tc.scores); got != tc.want {
			t.Errorf("%s: calculateTrend(%v) = %s, want %s", tc.name, tc.scores, got, tc.want)
		}
	}
}

func TestMean(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %f, want 0", got)
	}
	if got := mean([]float64{80, 90, 100}); got != 90 {
		t.Errorf("mean = %f, want 90", got)
	}
}

func TestComputeAnalytics(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session := &Session{
		ID:                  "analysis_u1_abc",
		UserID:              "u1",
		Language:            "en",
		StartTime:           start,
		LastUpdate:          start.Add(90 * time.Second),
		TotalWords:          42,
		TotalErrors:         3,
		PronunciationScores: []float64{70, 80, 90},
		GrammarScores:       []float64{60, 60, 60},
		FluencyScores:       []float64{85},
		CurrentMetrics:      FluencyMetrics{SpeechRate: 150},
		FeedbackHistory: []RealTimeFeedback{
			{Priority: PriorityCritical},
			{Priority: PriorityImportant},
			{Priority: PriorityImportant},
			{Priority: PriorityMinor},
			{Priority: PrioritySuggestion},
		},
		ImprovementAreas: []string{"articles", "th_sound"},
	}

	analytics := ComputeAnalytics(session)

	if analytics.SessionInfo.SessionID != "analysis_u1_abc" || analytics.SessionInfo.UserID != "u1" {
		t.Errorf("session info mismatch: %+v", analytics.SessionInfo)
	}
	if analytics.SessionInfo.Duration != 90 {
		t.Errorf("duration = %f, want 90", analytics.SessionInfo.Duration)
	}
	if analytics.SessionInfo.TotalWords != 42 || analytics.SessionInfo.TotalErrors != 3 {
		t.Errorf("counters mismatch: %+v", analytics.SessionInfo)
	}

	if analytics.Performance.Pronunciation.AverageScore != 80 {
		t.Errorf("pronunciation avg = %f, want 80", analytics.Performance.Pronunciation.AverageScore)
	}
	if analytics.Performance.Pronunciation.Trend != TrendStable {
		t.Errorf("pronunciation trend = %s, want stable", analytics.Performance.Pronunciation.Trend)
	}
	if analytics.Performance.Grammar.AverageScore != 60 {
		t.Errorf("grammar avg = %f, want 60", analytics.Performance.Grammar.AverageScore)
	}
	if analytics.Performance.Fluency.Trend != TrendInsufficientData {
		t.Errorf("fluency trend = %s, want insufficient_data", analytics.Performance.Fluency.Trend)
	}
	if analytics.Performance.Fluency.CurrentMetrics.SpeechRate != 150 {
		t.Errorf("current metrics not carried: %+v", analytics.Performance.Fluency.CurrentMetrics)
	}

	summary := analytics.FeedbackSummary
	if summary.TotalFeedback != 5 || summary.CriticalIssues != 1 || summary.ImportantIssues != 2 ||
		summary.MinorIssues != 1 || summary.Suggestions != 1 {
		t.Errorf("feedback summary mismatch: %+v", summary)
	}

	want := (80.0 + 60.0 + 85.0) / 3
	if analytics.OverallScore != want {
		t.Errorf("overall score = %f, want %f", analytics.OverallScore, want)
	}

	// The snapshot owns its improvement-areas slice.
	analytics.ImprovementAreas[0] = "mutated"
	if session.ImprovementAreas[0] != "articles" {
		t.Error("snapshot must not alias the session's improvement areas")
	}
}

func TestComputeAnalyticsEmptySession(t *testing.T) {
	now := time.Now()
	session := &Session{
		ID:         "analysis_u1_empty",
		UserID:     "u1",
		Language:   "en",
		StartTime:  now,
		LastUpdate: now,
	}

	analytics := ComputeAnalytics(session)
	if analytics.OverallScore != 0 {
		t.Errorf("empty session overall score = %f, want 0", analytics.OverallScore)
	}
	if analytics.Performance.Pronunciation.Trend != TrendInsufficientData {
		t.Errorf("empty history trend = %s, want insufficient_data", analytics.Performance.Pronunciation.Trend)
	}
	if analytics.FeedbackSummary.TotalFeedback != 0 {
		t.Errorf("empty session feedback total = %d", analytics.FeedbackSummary.TotalFeedback)
	}
}
