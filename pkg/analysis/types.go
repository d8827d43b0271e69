package analysis

import (
	"sync"
	"time"

	"fluently-server/pkg/errors"
)

// AnalysisType identifies one category of real-time analysis.
type AnalysisType string

const (
	AnalysisPronunciation AnalysisType = "pronunciation"
	AnalysisGrammar       AnalysisType = "grammar"
	AnalysisFluency       AnalysisType = "fluency"
	AnalysisVocabulary    AnalysisType = "vocabulary"
	// AnalysisComprehensive requests every concrete analysis category.
	AnalysisComprehensive AnalysisType = "comprehensive"
)

// ParseAnalysisType converts a wire string into an AnalysisType.
func ParseAnalysisType(value string) (AnalysisType, error) {
	switch AnalysisType(value) {
	case AnalysisPronunciation, AnalysisGrammar, AnalysisFluency, AnalysisVocabulary, AnalysisComprehensive:
		return AnalysisType(value), nil
	default:
		return "", errors.NewInvalidAnalysisType(value)
	}
}

// ShouldRun reports whether the candidate category was requested, either
// directly or through the comprehensive alias.
func ShouldRun(requested []AnalysisType, candidate AnalysisType) bool {
	for _, t := range requested {
		if t == candidate || t == AnalysisComprehensive {
			return true
		}
	}
	return false
}

// FeedbackPriority orders feedback by severity.
type FeedbackPriority string

const (
	PriorityCritical   FeedbackPriority = "critical"   // Major errors that impede communication
	PriorityImportant  FeedbackPriority = "important"  // Errors that affect clarity
	PriorityMinor      FeedbackPriority = "minor"      // Small improvements
	PrioritySuggestion FeedbackPriority = "suggestion" // Optional enhancements
)

// ParseFeedbackPriority converts a severity string, defaulting to minor for
// anything a model invents.
func ParseFeedbackPriority(value string) FeedbackPriority {
	switch FeedbackPriority(value) {
	case PriorityCritical, PriorityImportant, PriorityMinor, PrioritySuggestion:
		return FeedbackPriority(value)
	default:
		return PriorityMinor
	}
}

// AudioSegment is one transcribed chunk of user speech, the unit of analysis.
// Never mutated after creation.
type AudioSegment struct {
	Audio      []byte  `json:"-"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Duration   float64 `json:"duration"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// PronunciationAnalysis is the structured result of one pronunciation
// analysis invocation.
type PronunciationAnalysis struct {
	Word                  string                   `json:"word"`
	PhoneticTranscription string                   `json:"phonetic_transcription"`
	ExpectedPhonemes      []string                 `json:"expected_phonemes"`
	ActualPhonemes        []string                 `json:"actual_phonemes"`
	Score                 float64                  `json:"score"`
	Errors                []map[string]interface{} `json:"errors"`
	Suggestions           []string                 `json:"suggestions"`
	Confidence            float64                  `json:"confidence"`
}

// GrammarIssue describes one detected grammar error.
type GrammarIssue struct {
	Text        string           `json:"text"`
	ErrorType   string           `json:"error_type"`
	Start       int              `json:"start"`
	End         int              `json:"end"`
	Severity    FeedbackPriority `json:"severity"`
	Correction  string           `json:"correction"`
	Explanation string           `json:"explanation"`
	Rule        string           `json:"rule"`
	Confidence  float64          `json:"confidence"`
}

// FluencyMetrics captures one fluency measurement snapshot.
type FluencyMetrics struct {
	SpeechRate       float64 `json:"speech_rate"`       // Words per minute
	PauseCount       int     `json:"pause_count"`       // Number of pauses
	PauseDuration    float64 `json:"pause_duration"`    // Total pause time
	HesitationCount  int     `json:"hesitation_count"`  // Filler words, repetitions
	ArticulationRate float64 `json:"articulation_rate"` // Speaking rate excluding pauses
	ConfidenceScore  float64 `json:"confidence_score"`  // Overall confidence
	RhythmScore      float64 `json:"rhythm_score"`      // Speech rhythm consistency
}

// RealTimeFeedback is the unifying feedback envelope. At most one of the
// three embedded analysis payloads is non-nil.
type RealTimeFeedback struct {
	ID            string                 `json:"feedback_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Type          AnalysisType           `json:"analysis_type"`
	Priority      FeedbackPriority       `json:"priority"`
	Message       string                 `json:"message"`
	Correction    string                 `json:"correction,omitempty"`
	Explanation   string                 `json:"explanation"`
	Pronunciation *PronunciationAnalysis `json:"pronunciation_data,omitempty"`
	Grammar       *GrammarIssue          `json:"grammar_data,omitempty"`
	Fluency       *FluencyMetrics        `json:"fluency_data,omitempty"`
	Confidence    float64                `json:"confidence"`
	Actionable    bool                   `json:"actionable"`
}

// Session is the mutable aggregate for one ongoing practice interaction.
// All mutable fields are guarded by mu; identity fields (ID, UserID,
// Language, AnalysisTypes, StartTime) are set once at creation and read
// without locking.
type Session struct {
	mu sync.Mutex

	ID            string
	UserID        string
	Language      string
	AnalysisTypes []AnalysisType
	StartTime     time.Time

	LastUpdate          time.Time
	TotalWords          int
	TotalErrors         int
	PronunciationScores []float64
	GrammarScores       []float64
	FluencyScores       []float64
	FeedbackHistory     []RealTimeFeedback
	CurrentMetrics      FluencyMetrics
	ImprovementAreas    []string
}

// RecentFeedback returns up to limit most recent feedback items in
// chronological order.
func (s *Session) RecentFeedback(limit int) []RealTimeFeedback {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.FeedbackHistory) == 0 {
		return []RealTimeFeedback{}
	}

	start := len(s.FeedbackHistory) - limit
	if start < 0 {
		start = 0
	}

	tail := make([]RealTimeFeedback, len(s.FeedbackHistory)-start)
	copy(tail, s.FeedbackHistory[start:])
	return tail
}

// LanguageConfig holds per-language analysis parameters.
type LanguageConfig struct {
	MinSpeechRate float64
	MaxSpeechRate float64
	CommonErrors  []string
	GrammarRules  []string
}

// languageConfigs mirrors the tuning the tutoring pipeline was built with.
// Chinese rates are characters per minute, not words.
var languageConfigs = map[string]LanguageConfig{
	"en": {
		MinSpeechRate: 140,
		MaxSpeechRate: 180,
		CommonErrors:  []string{"th_sound", "r_sound", "vowel_length"},
		GrammarRules:  []string{"subject_verb_agreement", "tense_consistency", "articles"},
	},
	"es": {
		MinSpeechRate: 160,
		MaxSpeechRate: 200,
		CommonErrors:  []string{"b_v_confusion", "rolled_r", "vowel_clarity"},
		GrammarRules:  []string{"gender_agreement", "ser_vs_estar", "subjunctive"},
	},
	"fr": {
		MinSpeechRate: 150,
		MaxSpeechRate: 190,
		CommonErrors:  []string{"nasal_vowels", "liaison", "r_pronunciation"},
		GrammarRules:  []string{"gender_agreement", "partitive_articles", "subjunctive"},
	},
	"de": {
		MinSpeechRate: 120,
		MaxSpeechRate: 160,
		CommonErrors:  []string{"umlauts", "ch_sound", "consonant_clusters"},
		GrammarRules:  []string{"case_system", "word_order", "separable_verbs"},
	},
	"zh": {
		MinSpeechRate: 200,
		MaxSpeechRate: 250,
		CommonErrors:  []string{"tones", "aspirated_consonants", "vowel_quality"},
		GrammarRules:  []string{"measure_words", "aspect_markers", "word_order"},
	},
}

// ConfigForLanguage returns the language configuration, defaulting to
// English parameters for unknown languages.
func ConfigForLanguage(language string) LanguageConfig {
	if cfg, ok := languageConfigs[language]; ok {
		return cfg
	}
	return languageConfigs["en"]
}
