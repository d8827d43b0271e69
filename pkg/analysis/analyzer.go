package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fluently-server/pkg/ai"
	"fluently-server/pkg/errors"
	"fluently-server/pkg/metrics"
)

// DefaultCallTimeout bounds each sub-analyzer's external AI call so one
// slow provider cannot block the other categories.
const DefaultCallTimeout = 10 * time.Second

// subAnalysisResult is the outcome of one sub-analyzer run. A non-nil err
// means a soft failure: no feedback, no score, the other categories still
// count.
type subAnalysisResult struct {
	category AnalysisType
	feedback []RealTimeFeedback
	score    float64
	scored   bool
	metrics  *FluencyMetrics
	err      error
}

// analysisRecord is one entry of the bounded recent-analysis cache.
type analysisRecord struct {
	SessionID     string
	Timestamp     time.Time
	FeedbackCount int
	AudioDuration float64
}

type analysisCache struct {
	mu      sync.Mutex
	records []analysisRecord
	limit   int
}

func (c *analysisCache) add(record analysisRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	if len(c.records) > c.limit {
		c.records = c.records[len(c.records)-c.limit:]
	}
}

func (c *analysisCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Analyzer is the real-time analysis orchestrator: it owns session
// lifecycle and routes audio segments through the requested sub-analyzers.
type Analyzer struct {
	logger      *logrus.Logger
	provider    ai.Provider
	store       *SessionStore
	callTimeout time.Duration
	cache       *analysisCache
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCallTimeout overrides the per-sub-analyzer AI call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// NewAnalyzer creates an analyzer backed by the given provider and store.
func NewAnalyzer(logger *logrus.Logger, provider ai.Provider, store *SessionStore, opts ...Option) *Analyzer {
	if store == nil {
		store = NewSessionStore()
	}

	analyzer := &Analyzer{
		logger:      logger,
		provider:    provider,
		store:       store,
		callTimeout: DefaultCallTimeout,
		cache:       &analysisCache{limit: 1000},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(analyzer)
	}

	return analyzer
}

// StartSession creates a new analysis session and returns its id.
func (a *Analyzer) StartSession(userID, language string, analysisTypes []AnalysisType) string {
	if len(analysisTypes) == 0 {
		analysisTypes = []AnalysisType{AnalysisComprehensive}
	}

	now := a.now()
	session := &Session{
		ID:                  fmt.Sprintf("analysis_%s_%s", userID, uuid.NewString()[:8]),
		UserID:              userID,
		Language:            language,
		AnalysisTypes:       analysisTypes,
		StartTime:           now,
		LastUpdate:          now,
		PronunciationScores: []float64{},
		GrammarScores:       []float64{},
		FluencyScores:       []float64{},
		FeedbackHistory:     []RealTimeFeedback{},
		ImprovementAreas:    []string{},
	}

	a.store.Put(session)
	metrics.SessionStarted()
	metrics.SetActiveSessions(a.store.Count())

	a.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"user_id":    userID,
		"language":   language,
	}).Info("Started analysis session")

	return session.ID
}

// AnalyzeSegment runs the requested sub-analyzers over one audio segment
// and atomically folds the results into the session. Sub-analyzer failures
// are logged and skipped; the call returns whatever the other categories
// produced.
func (a *Analyzer) AnalyzeSegment(ctx context.Context, sessionID string, segment AudioSegment, analysisTypes []AnalysisType) ([]RealTimeFeedback, error) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return nil, errors.NewSessionNotFound(sessionID)
	}

	if len(analysisTypes) == 0 {
		analysisTypes = session.AnalysisTypes
	}

	type subAnalyzer struct {
		category AnalysisType
		run      func(context.Context, AudioSegment, *Session) subAnalysisResult
	}

	// Fixed collection order: pronunciation, grammar, fluency.
	var jobs []subAnalyzer
	if ShouldRun(analysisTypes, AnalysisPronunciation) {
		jobs = append(jobs, subAnalyzer{AnalysisPronunciation, a.analyzePronunciation})
	}
	if ShouldRun(analysisTypes, AnalysisGrammar) {
		jobs = append(jobs, subAnalyzer{AnalysisGrammar, a.analyzeGrammar})
	}
	if ShouldRun(analysisTypes, AnalysisFluency) {
		jobs = append(jobs, subAnalyzer{AnalysisFluency, a.analyzeFluency})
	}

	results := make([]subAnalysisResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job subAnalyzer) {
			defer wg.Done()
			started := time.Now()
			results[i] = a.runSafely(ctx, job.category, job.run, segment, session)
			metrics.ObserveAnalysisDuration(string(job.category), time.Since(started).Seconds())
		}(i, job)
	}
	wg.Wait()

	feedback := []RealTimeFeedback{}
	for _, result := range results {
		if result.err != nil {
			a.logger.WithError(result.err).WithFields(logrus.Fields{
				"session_id": sessionID,
				"category":   result.category,
			}).Warn("Sub-analyzer failed, continuing without its feedback")
			metrics.AnalyzerError(string(result.category))
			continue
		}
		feedback = append(feedback, result.feedback...)
	}

	updated := a.store.Update(sessionID, func(s *Session) {
		applySegmentResults(s, segment, results, feedback, a.now())
	})
	if !updated {
		// Session ended while the analysis was in flight: drop the update.
		a.logger.WithField("session_id", sessionID).Debug("Session ended mid-analysis, dropping update")
	}

	metrics.SegmentAnalyzed()
	for _, item := range feedback {
		metrics.FeedbackProduced(string(item.Type), string(item.Priority))
	}
	a.cache.add(analysisRecord{
		SessionID:     sessionID,
		Timestamp:     a.now(),
		FeedbackCount: len(feedback),
		AudioDuration: segment.Duration,
	})

	a.logger.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"feedback_count": len(feedback),
	}).Debug("Analyzed audio segment")

	return feedback, nil
}

// runSafely converts a sub-analyzer panic into a soft failure so one bad
// category can never take down the whole request.
func (a *Analyzer) runSafely(ctx context.Context, category AnalysisType, run func(context.Context, AudioSegment, *Session) subAnalysisResult, segment AudioSegment, session *Session) (result subAnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			result = subAnalysisResult{
				category: category,
				err:      errors.New(fmt.Sprintf("sub-analyzer panic: %v", r)),
			}
		}
	}()
	return run(ctx, segment, session)
}

// EndSession computes the final analytics snapshot, removes the session,
// and returns the snapshot. Ending is destructive: a second call for the
// same id fails with session-not-found.
func (a *Analyzer) EndSession(sessionID string) (*SessionAnalytics, error) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return nil, errors.NewSessionNotFound(sessionID)
	}

	final := ComputeAnalytics(session)

	if _, ok := a.store.Delete(sessionID); !ok {
		// Lost the race with a concurrent end.
		return nil, errors.NewSessionNotFound(sessionID)
	}

	metrics.SessionEnded()
	metrics.SetActiveSessions(a.store.Count())
	a.logger.WithField("session_id", sessionID).Info("Ended analysis session")

	return final, nil
}

// SessionAnalytics computes the current analytics snapshot for a live session.
func (a *Analyzer) SessionAnalytics(sessionID string) (*SessionAnalytics, error) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return nil, errors.NewSessionNotFound(sessionID)
	}
	return ComputeAnalytics(session), nil
}

// LiveFeedback returns up to limit most recent feedback items for a session,
// oldest first. An unknown session yields an empty list, not an error: this
// is an optimistic polling accessor.
func (a *Analyzer) LiveFeedback(sessionID string, limit int) []RealTimeFeedback {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return []RealTimeFeedback{}
	}
	if limit <= 0 {
		limit = 5
	}
	return session.RecentFeedback(limit)
}

// SessionOwner returns the user id owning a live session.
func (a *Analyzer) SessionOwner(sessionID string) (string, bool) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return "", false
	}
	return session.UserID, true
}

// SessionStartTime returns when a live session was created.
func (a *Analyzer) SessionStartTime(sessionID string) (time.Time, bool) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return time.Time{}, false
	}
	return session.StartTime, true
}

// SessionLanguage returns the target language of a live session.
func (a *Analyzer) SessionLanguage(sessionID string) (string, bool) {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return "", false
	}
	return session.Language, true
}

// ActiveSessions returns the number of live sessions.
func (a *Analyzer) ActiveSessions() int {
	return a.store.Count()
}

// RecentAnalyses returns how many analysis calls the bounded cache holds.
func (a *Analyzer) RecentAnalyses() int {
	return a.cache.size()
}

// applySegmentResults folds one analysis round into the session. Runs under
// the session lock via SessionStore.Update.
func applySegmentResults(s *Session, segment AudioSegment, results []subAnalysisResult, feedback []RealTimeFeedback, now time.Time) {
	s.LastUpdate = now
	s.TotalWords += len(strings.Fields(segment.Text))

	for _, item := range feedback {
		if item.Priority == PriorityCritical || item.Priority == PriorityImportant {
			s.TotalErrors++
		}
	}

	for _, result := range results {
		if result.err != nil {
			continue
		}
		if result.scored {
			switch result.category {
			case AnalysisPronunciation:
				s.PronunciationScores = append(s.PronunciationScores, result.score)
			case AnalysisGrammar:
				s.GrammarScores = append(s.GrammarScores, result.score)
			case AnalysisFluency:
				s.FluencyScores = append(s.FluencyScores, result.score)
			}
		}
		if result.metrics != nil {
			s.CurrentMetrics = *result.metrics
		}
	}

	s.FeedbackHistory = append(s.FeedbackHistory, feedback...)
	s.ImprovementAreas = mergeImprovementAreas(s.ImprovementAreas, feedback)
}

// mergeImprovementAreas folds the issue tags of new feedback into the
// rolling de-duplicated list, keeping the 10 most recent unique values.
func mergeImprovementAreas(existing []string, feedback []RealTimeFeedback) []string {
	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing))
	for _, area := range existing {
		if _, dup := seen[area]; dup {
			continue
		}
		seen[area] = struct{}{}
		merged = append(merged, area)
	}

	for _, item := range feedback {
		var areas []string
		if item.Grammar != nil {
			areas = append(areas, item.Grammar.ErrorType)
		}
		if item.Pronunciation != nil {
			for _, issue := range item.Pronunciation.Errors {
				areas = append(areas, describePronunciationIssue(issue))
			}
		}

		for _, area := range areas {
			if area == "" {
				continue
			}
			if _, dup := seen[area]; dup {
				continue
			}
			seen[area] = struct{}{}
			merged = append(merged, area)
		}
	}

	if len(merged) > 10 {
		merged = merged[len(merged)-10:]
	}
	return merged
}

// describePronunciationIssue flattens a model-shaped error descriptor into
// a stable tag, preferring explicit type keys over raw formatting.
func describePronunciationIssue(issue map[string]interface{}) string {
	for _, key := range []string{"type", "error", "error_type"} {
		if v, ok := issue[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("%v", issue)
}

// feedbackID builds a unique feedback identifier scoped to a session.
func feedbackID(kind, sessionID string) string {
	return fmt.Sprintf("%s_%s_%s", kind, sessionID, uuid.NewString()[:8])
}
