package policy

import (
	"strings"

	"symptomcheck/internal/model"
)

// SeverityTrigger fires when a numeric answer to QuestionID reaches Threshold
type SeverityTrigger struct {
	QuestionID string  `yaml:"question_id"`
	Threshold  float64 `yaml:"threshold"`
}

// EmergencyRules configures the emergency screen
type EmergencyRules struct {
	QuestionID   string            `yaml:"question_id"`
	NoneSentinel string            `yaml:"none_sentinel"`
	Keywords     []string          `yaml:"keywords"`
	Severity     []SeverityTrigger `yaml:"severity"`
}

// DefaultEmergencyRules covers red-flag symptoms that warrant an emergency screen
func DefaultEmergencyRules() EmergencyRules {
	return EmergencyRules{
		QuestionID:   model.EmergencyQuestionID,
		NoneSentinel: model.NoneSentinel,
		Keywords: []string{
			"chest pain",
			"chest pressure",
			"shortness of breath",
			"can't breathe",
			"cannot breathe",
			"difficulty breathing",
			"fainted",
			"unconscious",
			"seizure",
			"slurred speech",
			"face drooping",
			"numbness",
			"severe bleeding",
			"coughing blood",
			"vomiting blood",
			"suicidal",
			"worst headache",
			"stiff neck",
			"anaphylaxis",
			"throat swelling",
		},
		Severity: []SeverityTrigger{
			{QuestionID: "pain_severity", Threshold: 9},
			{QuestionID: "severity", Threshold: 9},
			{QuestionID: "temperature", Threshold: 40},
		},
	}
}

// Screener decides when the emergency question has to be asked and whether
// its answer escalates. It is immutable and safe for concurrent use.
type Screener struct {
	questionID string
	none       string
	keywords   []string
	severity   map[string]float64
}

// NewScreener compiles the rules. Keywords match case-insensitively.
func NewScreener(rules EmergencyRules) *Screener {
	s := &Screener{
		questionID: rules.QuestionID,
		none:       strings.ToLower(strings.TrimSpace(rules.NoneSentinel)),
		severity:   make(map[string]float64, len(rules.Severity)),
	}
	if s.questionID == "" {
		s.questionID = model.EmergencyQuestionID
	}
	if s.none == "" {
		s.none = model.NoneSentinel
	}
	for _, kw := range rules.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			s.keywords = append(s.keywords, kw)
		}
	}
	for _, t := range rules.Severity {
		// lowest threshold wins when a question id is listed twice
		if cur, ok := s.severity[t.QuestionID]; !ok || t.Threshold < cur {
			s.severity[t.QuestionID] = t.Threshold
		}
	}
	return s
}

// QuestionID is the id of the emergency question
func (s *Screener) QuestionID() string {
	return s.questionID
}

// NeedsEmergencyScreen reports whether any response so far carries an
// emergency indicator. Once the emergency question has been answered it never
// asks again.
func (s *Screener) NeedsEmergencyScreen(responses []model.QuestionResponse) bool {
	for _, r := range responses {
		if r.QuestionID == s.questionID {
			return false
		}
	}
	for _, r := range responses {
		if s.triggers(r) {
			return true
		}
	}
	return false
}

func (s *Screener) triggers(r model.QuestionResponse) bool {
	if r.Answer.Kind == model.AnswerNumber {
		if threshold, ok := s.severity[r.QuestionID]; ok && r.Answer.Number >= threshold {
			return true
		}
		return false
	}
	for _, v := range r.Answer.Values() {
		v = strings.ToLower(v)
		for _, kw := range s.keywords {
			if strings.Contains(v, kw) {
				return true
			}
		}
	}
	return false
}

// IsEmergencyEscalation reports whether an answer to the emergency question
// means the patient has an emergency symptom. Anything but an absent answer,
// a false boolean or exactly the none sentinel escalates.
func (s *Screener) IsEmergencyEscalation(r *model.QuestionResponse) bool {
	if r == nil {
		return false
	}
	a := r.Answer
	switch a.Kind {
	case model.AnswerList:
		if len(a.List) == 0 {
			return false
		}
		return !(len(a.List) == 1 && s.isNone(a.List[0]))
	case model.AnswerText:
		return strings.TrimSpace(a.Text) != "" && !s.isNone(a.Text)
	case model.AnswerBool:
		return a.Bool
	case model.AnswerNumber:
		return true
	}
	return false
}

func (s *Screener) isNone(v string) bool {
	return strings.ToLower(strings.TrimSpace(v)) == s.none
}
