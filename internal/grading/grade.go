package grading

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/model"
)

// QuestionResult is the graded outcome of one auto-graded question.
type QuestionResult struct {
	QuestionID    uuid.UUID          `json:"question_id"`
	Type          model.QuestionType `json:"type"`
	Answer        string             `json:"answer"`
	Answered      bool               `json:"answered"`
	IsCorrect     bool               `json:"is_correct"`
	PointsAwarded float64            `json:"points_awarded"`
	Points        float64            `json:"points"`
}

// Result aggregates an exam's grading.
type Result struct {
	Score      float64          `json:"score"`
	MaxScore   float64          `json:"max_score"`
	Percentage float64          `json:"percentage"`
	Questions  []QuestionResult `json:"questions"`
}

// Grade scores answers (question id → raw value) against every auto-graded
// question. It has no side effects and never fails; a missing or malformed
// answer is simply incorrect.
func Grade(g Grader, questions []model.Question, answers map[string]json.RawMessage) Result {
	if g == nil {
		g = Default
	}

	res := Result{Questions: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		if !q.Type.AutoGraded() {
			continue
		}
		points := math.Max(q.Points, 0)
		res.MaxScore += points

		qr := QuestionResult{QuestionID: q.ID, Type: q.Type, Points: points}
		raw, ok := answers[q.ID.String()]
		if !ok {
			res.Questions = append(res.Questions, qr)
			continue
		}

		submitted := Parse(raw)
		out := g.Grade(q, submitted)
		qr.Answer = submitted.Canonical()
		qr.Answered = submitted.Kind != KindEmpty
		qr.IsCorrect = out.IsCorrect
		qr.PointsAwarded = out.Points

		res.Score += out.Points
		res.Questions = append(res.Questions, qr)
	}

	if res.MaxScore > 0 {
		res.Percentage = round2(res.Score / res.MaxScore * 100)
	}
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
