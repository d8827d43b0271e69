package analysis

// Trend is a coarse directional label derived from a score history.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// SessionInfo carries session metadata in the analytics snapshot.
type SessionInfo struct {
	SessionID   string  `json:"session_id"`
	UserID      string  `json:"user_id"`
	Language    string  `json:"language"`
	Duration    float64 `json:"duration"`
	TotalWords  int     `json:"total_words"`
	TotalErrors int     `json:"total_errors"`
}

// CategoryStats summarizes one score history.
type CategoryStats struct {
	AverageScore float64 `json:"average_score"`
	Trend        Trend   `json:"trend"`
	Samples      int     `json:"samples"`
}

// FluencyStats extends CategoryStats with the current metrics snapshot.
type FluencyStats struct {
	CategoryStats
	CurrentMetrics FluencyMetrics `json:"current_metrics"`
}

// PerformanceMetrics groups the three category summaries.
type PerformanceMetrics struct {
	Pronunciation CategoryStats `json:"pronunciation"`
	Grammar       CategoryStats `json:"grammar"`
	Fluency       FluencyStats  `json:"fluency"`
}

// FeedbackSummary counts feedback by priority.
type FeedbackSummary struct {
	TotalFeedback   int `json:"total_feedback"`
	CriticalIssues  int `json:"critical_issues"`
	ImportantIssues int `json:"important_issues"`
	MinorIssues     int `json:"minor_issues"`
	Suggestions     int `json:"suggestions"`
}

// SessionAnalytics is the aggregated snapshot for one session.
type SessionAnalytics struct {
	SessionInfo      SessionInfo        `json:"session_info"`
	Performance      PerformanceMetrics `json:"performance_metrics"`
	FeedbackSummary  FeedbackSummary    `json:"feedback_summary"`
	ImprovementAreas []string           `json:"improvement_areas"`
	OverallScore     float64            `json:"overall_score"`
}

// ComputeAnalytics builds the analytics snapshot for a session. Reads the
// session under its lock; never mutates it.
func ComputeAnalytics(session *Session) *SessionAnalytics {
	session.mu.Lock()
	defer session.mu.Unlock()

	avgPronunciation := mean(session.PronunciationScores)
	avgGrammar := mean(session.GrammarScores)
	avgFluency := mean(session.FluencyScores)

	summary := FeedbackSummary{TotalFeedback: len(session.FeedbackHistory)}
	for _, item := range session.FeedbackHistory {
		switch item.Priority {
		case PriorityCritical:
			summary.CriticalIssues++
		case PriorityImportant:
			summary.ImportantIssues++
		case PriorityMinor:
			summary.MinorIssues++
		case PrioritySuggestion:
			summary.Suggestions++
		}
	}

	areas := make([]string, len(session.ImprovementAreas))
	copy(areas, session.ImprovementAreas)

	return &SessionAnalytics{
		SessionInfo: SessionInfo{
			SessionID:   session.ID,
			UserID:      session.UserID,
			Language:    session.Language,
			Duration:    session.LastUpdate.Sub(session.StartTime).Seconds(),
			TotalWords:  session.TotalWords,
			TotalErrors: session.TotalErrors,
		},
		Performance: PerformanceMetrics{
			Pronunciation: CategoryStats{
				AverageScore: avgPronunciation,
				Trend:        calculateTrend(session.PronunciationScores),
				Samples:      len(session.PronunciationScores),
			},
			Grammar: CategoryStats{
				AverageScore: avgGrammar,
				Trend:        calculateTrend(session.GrammarScores),
				Samples:      len(session.GrammarScores),
			},
			Fluency: FluencyStats{
				CategoryStats: CategoryStats{
					AverageScore: avgFluency,
					Trend:        calculateTrend(session.FluencyScores),
					Samples:      len(session.FluencyScores),
				},
				CurrentMetrics: session.CurrentMetrics,
			},
		},
		FeedbackSummary:  summary,
		ImprovementAreas: areas,
		OverallScore:     (avgPronunciation + avgGrammar + avgFluency) / 3,
	}
}

// mean returns the arithmetic mean, 0 for an empty history.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateTrend compares the mean of the last three samples against the
// mean of everything before them (or all samples when three or fewer
// exist). A difference beyond five points in either direction flips the
// label off stable.
func calculateTrend(scores []float64) Trend {
	if len(scores) < 3 {
		return TrendInsufficientData
	}

	recent := scores[len(scores)-3:]
	earlier := scores
	if len(scores) > 3 {
		earlier = scores[:len(scores)-3]
	}

	recentAvg := mean(recent)
	earlierAvg := mean(earlier)

	switch {
	case recentAvg > earlierAvg+5:
		return TrendImproving
	case recentAvg < earlierAvg-5:
		return TrendDeclining
	default:
		return TrendStable
	}
}
