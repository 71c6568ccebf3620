package ai

import (
	"encoding/json"
	"errors"
	"time"
)

// ScoreResult is the structured assessment of one resume against a job description.
type ScoreResult struct {
	CandidateName         string                `json:"candidate_name"`
	PositionApplied       string                `json:"position_applied"`
	Company               string                `json:"company"`
	OverallFitScore       float64               `json:"overall_fit_score"`
	Recommendation        string                `json:"recommendation"`
	FitLevel              string                `json:"fit_level"`
	KeyStrengths          []string              `json:"key_strengths"`
	MajorConcerns         []string              `json:"major_concerns"`
	SkillsAssessment      SkillsAssessment      `json:"skills_assessment"`
	ExperienceFit         ExperienceFit         `json:"experience_fit"`
	HiringDecisionFactors HiringDecisionFactors `json:"hiring_decision_factors"`
	EvaluationTimestamp   time.Time             `json:"evaluation_timestamp"`
}

type SkillsAssessment struct {
	RequiredSkillsMatch   int      `json:"required_skills_match"`
	PreferredSkillsMatch  int      `json:"preferred_skills_match"`
	CriticalSkillsMissing []string `json:"critical_skills_missing"`
	SkillGapsImpact       string   `json:"skill_gaps_impact"`
}

type ExperienceFit struct {
	YearsRequired       float64 `json:"years_required"`
	YearsCandidateHas   float64 `json:"years_candidate_has"`
	ExperienceRelevance string  `json:"experience_relevance"`
	ProjectQuality      string  `json:"project_quality"`
}

type HiringDecisionFactors struct {
	TechnicalCompetency   int `json:"technical_competency"`
	ExperienceLevel       int `json:"experience_level"`
	CulturalFitIndicators int `json:"cultural_fit_indicators"`
	GrowthPotential       int `json:"growth_potential"`
	ImmediateProductivity int `json:"immediate_productivity"`
}

// Failure describes why a resume could not be scored.
type Failure struct {
	Kind      Kind   `json:"errorKind"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// Outcome is either a successful result or a failure; exactly one is set.
type Outcome struct {
	Result  *ScoreResult
	Failure *Failure
}

// Success wraps a result into an outcome.
func Success(result *ScoreResult) Outcome {
	return Outcome{Result: result}
}

// Fail builds a failure outcome.
func Fail(kind Kind, message string, retriable bool) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Message: message, Retriable: retriable}}
}

// FailWith converts err into a failure outcome.
func FailWith(err error) Outcome {
	return Outcome{Failure: FailureFrom(err)}
}

func (o Outcome) OK() bool {
	return o.Result != nil && o.Failure == nil
}

// Kind returns the failure kind or an empty string for successes.
func (o Outcome) Kind() Kind {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Kind
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch {
	case o.Failure != nil:
		return json.Marshal(o.Failure)
	case o.Result != nil:
		return json.Marshal(o.Result)
	default:
		return nil, errors.New("empty outcome")
	}
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind Kind `json:"errorKind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Kind != "" {
		var failure Failure
		if err := json.Unmarshal(data, &failure); err != nil {
			return err
		}
		*o = Outcome{Failure: &failure}
		return nil
	}

	var result ScoreResult
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*o = Outcome{Result: &result}
	return nil
}
