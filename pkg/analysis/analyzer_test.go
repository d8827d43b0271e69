package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	apperrors "fluently-server/pkg/errors"
)

// stubProvider routes prompts to configurable responses per category.
type stubProvider struct {
	pronunciationResponse string
	pronunciationErr      error
	grammarResponse       string
	grammarErr            error
}

func (p *stubProvider) Initialize() error { return nil }
func (p *stubProvider) Name() string      { return "stub" }

func (p *stubProvider) GenerateResponse(_ context.Context, prompt, _ string) (string, error) {
	if strings.Contains(prompt, "grammar") {
		return p.grammarResponse, p.grammarErr
	}
	return p.pronunciationResponse, p.pronunciationErr
}

func goodStub() *stubProvider {
	return &stubProvider{
		pronunciationResponse: "```json\n{\"score\": 80, \"suggestions\": [\"practice vowels\"], \"confidence\": 0.9}\n```",
		grammarResponse:       `Here you go: [{"error_type": "articles", "start": 0, "end": 5, "severity": "important", "correction": "the dog", "explanation": "missing article", "rule": "articles", "confidence": 0.8}]`,
	}
}

func testSegment(text string, duration float64) AudioSegment {
	return AudioSegment{
		Text:       text,
		Duration:   duration,
		Language:   "en",
		Confidence: 0.95,
	}
}

func newTestAnalyzer(provider *stubProvider) *Analyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewAnalyzer(logger, provider, NewSessionStore())
}

func TestStartSessionCreatesLiveSession(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())

	sessionID := analyzer.StartSession("u1", "en", nil)
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}
	if !strings.HasPrefix(sessionID, "analysis_u1_") {
		t.Errorf("unexpected session id format: %s", sessionID)
	}

	if analyzer.ActiveSessions() != 1 {
		t.Fatalf("expected 1 active session, got %d", analyzer.ActiveSessions())
	}

	owner, ok := analyzer.SessionOwner(sessionID)
	if !ok || owner != "u1" {
		t.Errorf("expected owner u1, got %q (ok=%v)", owner, ok)
	}

	startedAt, ok := analyzer.SessionStartTime(sessionID)
	if !ok || startedAt.IsZero() {
		t.Errorf("expected a start timestamp, got %v (ok=%v)", startedAt, ok)
	}
	if _, ok := analyzer.SessionStartTime("missing"); ok {
		t.Error("unknown session must not report a start time")
	}
}

func TestAnalyzeSegmentUnknownSession(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())

	_, err := analyzer.AnalyzeSegment(context.Background(), "missing", testSegment("hello world", 1.0), nil)
	if !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got: %v", err)
	}
}

func TestAnalyzeSegmentComprehensive(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())
	sessionID := analyzer.StartSession("u1", "en", []AnalysisType{AnalysisComprehensive})

	feedback, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("I saw dog in park yesterday", 3.0), nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	// Fixed order: pronunciation first, then grammar, then fluency.
	if len(feedback) < 2 {
		t.Fatalf("expected pronunciation and grammar feedback at least, got %d items", len(feedback))
	}
	if feedback[0].Type != AnalysisPronunciation {
		t.Errorf("expected pronunciation feedback first, got %s", feedback[0].Type)
	}
	if feedback[1].Type != AnalysisGrammar {
		t.Errorf("expected grammar feedback second, got %s", feedback[1].Type)
	}

	if !feedback[1].Actionable {
		t.Error("grammar feedback with a correction should be actionable")
	}

	session, ok := analyzer.store.Get(sessionID)
	if !ok {
		t.Fatal("session disappeared")
	}
	if len(session.PronunciationScores) != 1 || len(session.GrammarScores) != 1 || len(session.FluencyScores) != 1 {
		t.Errorf("expected one score per category, got %d/%d/%d",
			len(session.PronunciationScores), len(session.GrammarScores), len(session.FluencyScores))
	}
	if session.TotalWords != 6 {
		t.Errorf("expected 6 words counted, got %d", session.TotalWords)
	}
	if len(session.ImprovementAreas) == 0 || session.ImprovementAreas[0] != "articles" {
		t.Errorf("expected improvement area from grammar error type, got %v", session.ImprovementAreas)
	}
}

func TestAnalyzeSegmentAppendOnlyHistory(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())
	sessionID := analyzer.StartSession("u1", "en", nil)

	const n = 4
	for i := 0; i < n; i++ {
		if _, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("hello there friend", 1.5), nil); err != nil {
			t.Fatalf("analyze %d failed: %v", i, err)
		}
	}

	session, _ := analyzer.store.Get(sessionID)
	if len(session.PronunciationScores) != n {
		t.Fatalf("expected %d pronunciation scores, got %d", n, len(session.PronunciationScores))
	}
}

func TestAnalyzeSegmentPartialFailure(t *testing.T) {
	provider := goodStub()
	provider.pronunciationErr = errors.New("provider unreachable")
	analyzer := newTestAnalyzer(provider)
	sessionID := analyzer.StartSession("u1", "en", nil)

	feedback, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("I saw dog in park", 10.0), nil)
	if err != nil {
		t.Fatalf("analyze must not fail on sub-analyzer error: %v", err)
	}

	for _, item := range feedback {
		if item.Type == AnalysisPronunciation {
			t.Error("failed pronunciation analyzer must not produce feedback")
		}
	}

	hasGrammar := false
	for _, item := range feedback {
		if item.Type == AnalysisGrammar {
			hasGrammar = true
		}
	}
	if !hasGrammar {
		t.Error("grammar feedback missing despite pronunciation failure")
	}

	session, _ := analyzer.store.Get(sessionID)
	if len(session.PronunciationScores) != 0 {
		t.Errorf("failed category must not append a score, got %v", session.PronunciationScores)
	}
	if len(session.GrammarScores) != 1 {
		t.Errorf("expected grammar score despite pronunciation failure, got %v", session.GrammarScores)
	}
}

func TestAnalyzeSegmentUnparseableResponses(t *testing.T) {
	provider := &stubProvider{
		pronunciationResponse: "I could not analyze that, sorry.",
		grammarResponse:       "No structured output here either.",
	}
	analyzer := newTestAnalyzer(provider)
	sessionID := analyzer.StartSession("u1", "en", nil)

	feedback, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("word word word word", 2.0), nil)
	if err != nil {
		t.Fatalf("parse failures must stay soft: %v", err)
	}

	for _, item := range feedback {
		if item.Type != AnalysisFluency {
			t.Errorf("only fluency can produce feedback here, got %s", item.Type)
		}
	}

	session, _ := analyzer.store.Get(sessionID)
	if len(session.PronunciationScores) != 0 || len(session.GrammarScores) != 0 {
		t.Error("unparseable responses must not append scores")
	}
	if len(session.FluencyScores) != 1 {
		t.Errorf("fluency should still score, got %v", session.FluencyScores)
	}
}

func TestRequestedTypesSubset(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())
	sessionID := analyzer.StartSession("u1", "en", []AnalysisType{AnalysisFluency})

	feedback, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("word word", 10.0), nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	for _, item := range feedback {
		if item.Type != AnalysisFluency {
			t.Errorf("unrequested category ran: %s", item.Type)
		}
	}

	session, _ := analyzer.store.Get(sessionID)
	if len(session.PronunciationScores) != 0 || len(session.GrammarScores) != 0 {
		t.Error("unrequested categories must not score")
	}
}

func TestEndSessionLifecycle(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())

	if _, err := analyzer.EndSession("never-started"); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found for unknown id, got: %v", err)
	}

	sessionID := analyzer.StartSession("u1", "en", nil)
	if _, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("hello there friend", 1.5), nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	final, err := analyzer.EndSession(sessionID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if final.SessionInfo.SessionID != sessionID {
		t.Errorf("final snapshot has wrong session id: %s", final.SessionInfo.SessionID)
	}

	if _, err := analyzer.EndSession(sessionID); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("second end must fail with session-not-found, got: %v", err)
	}
	if _, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("more", 1.0), nil); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("analyze after end must fail with session-not-found, got: %v", err)
	}
	if _, err := analyzer.SessionAnalytics(sessionID); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("analytics after end must fail with session-not-found, got: %v", err)
	}
}

func TestLiveFeedbackIdempotentRead(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())
	sessionID := analyzer.StartSession("u1", "en", nil)

	if _, err := analyzer.AnalyzeSegment(context.Background(), sessionID, testSegment("I saw dog in park", 10.0), nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	first := analyzer.LiveFeedback(sessionID, 5)
	second := analyzer.LiveFeedback(sessionID, 5)

	if len(first) == 0 {
		t.Fatal("expected live feedback")
	}
	if len(first) != len(second) {
		t.Fatalf("reads differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("reads differ at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	if got := analyzer.LiveFeedback("unknown", 5); len(got) != 0 {
		t.Errorf("unknown session must yield empty feedback, got %d items", len(got))
	}
}

func TestEndToEndScenario(t *testing.T) {
	analyzer := newTestAnalyzer(goodStub())
	sessionID := analyzer.StartSession("u1", "en", []AnalysisType{AnalysisComprehensive})

	segment := AudioSegment{
		Text:       "Hello, how are you?",
		Duration:   2.0,
		Language:   "en",
		Confidence: 0.95,
	}

	feedback, err := analyzer.AnalyzeSegment(context.Background(), sessionID, segment, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	// Speech rate is well below the English 140-180wpm range, so a fluency
	// suggestion about speaking faster must be present.
	foundFluencyTip := false
	for _, item := range feedback {
		if item.Type == AnalysisFluency && item.Priority == PrioritySuggestion {
			foundFluencyTip = true
			if !strings.Contains(item.Explanation, "faster") {
				t.Errorf("expected speaking-faster tip, got: %s", item.Explanation)
			}
		}
	}
	if !foundFluencyTip {
		t.Error("expected fluency suggestion for slow speech rate")
	}

	analytics, err := analyzer.SessionAnalytics(sessionID)
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}

	want := (analytics.Performance.Pronunciation.AverageScore +
		analytics.Performance.Grammar.AverageScore +
		analytics.Performance.Fluency.AverageScore) / 3
	if analytics.OverallScore != want {
		t.Errorf("overall score %f != mean of category averages %f", analytics.OverallScore, want)
	}

	if _, err := analyzer.EndSession(sessionID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := analyzer.AnalyzeSegment(context.Background(), sessionID, segment, nil); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("analyze after end must fail with session-not-found, got: %v", err)
	}
}

func TestShouldRun(t *testing.T) {
	if !ShouldRun([]AnalysisType{AnalysisComprehensive}, AnalysisGrammar) {
		t.Error("comprehensive must include grammar")
	}
	if !ShouldRun([]AnalysisType{AnalysisGrammar}, AnalysisGrammar) {
		t.Error("direct request must match")
	}
	if ShouldRun([]AnalysisType{AnalysisGrammar}, AnalysisFluency) {
		t.Error("fluency was not requested")
	}
}

func TestParseAnalysisType(t *testing.T) {
	if _, err := ParseAnalysisType("pronunciation"); err != nil {
		t.Errorf("valid type rejected: %v", err)
	}
	if _, err := ParseAnalysisType("bogus"); !errors.Is(err, apperrors.ErrInvalidAnalysisType) {
		t.Errorf("expected invalid-analysis-type, got: %v", err)
	}
}
