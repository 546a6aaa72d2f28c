package grading

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/model"
)

func TestGradeMultipleChoiceScenario(t *testing.T) {
	q1 := question(model.QuestionTypeMultipleChoice, 5, `"A"`)
	q2 := question(model.QuestionTypeMultipleChoice, 10, `"B"`)
	answers := map[string]json.RawMessage{
		q1.ID.String(): json.RawMessage(`"A"`),
		q2.ID.String(): json.RawMessage(`"C"`),
	}

	res := Grade(nil, []model.Question{q1, q2}, answers)

	if res.Score != 5 || res.MaxScore != 15 {
		t.Fatalf("score = %v/%v, want 5/15", res.Score, res.MaxScore)
	}
	if res.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", res.Percentage)
	}
	if len(res.Questions) != 2 || !res.Questions[0].IsCorrect || res.Questions[1].IsCorrect {
		t.Errorf("unexpected per-question results: %+v", res.Questions)
	}
}

func TestGradeNoGradableQuestions(t *testing.T) {
	tests := []struct {
		name      string
		questions []model.Question
	}{
		{name: "no questions"},
		{name: "only short answers", questions: []model.Question{question(model.QuestionTypeShortAnswer, 10, `"x"`)}},
		{name: "zero points", questions: []model.Question{question(model.QuestionTypeMultipleChoice, 0, `"x"`)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Grade(nil, tc.questions, map[string]json.RawMessage{})
			if res.Percentage != 0 {
				t.Errorf("percentage = %v, want 0", res.Percentage)
			}
		})
	}
}

func TestGradeSkipsShortAnswerAndMissing(t *testing.T) {
	short := question(model.QuestionTypeShortAnswer, 10, `"essay"`)
	mc := question(model.QuestionTypeMultipleChoice, 2, `"A"`)
	res := Grade(nil, []model.Question{short, mc}, map[string]json.RawMessage{
		short.ID.String(): json.RawMessage(`"essay"`),
	})

	if res.MaxScore != 2 || res.Score != 0 {
		t.Fatalf("score = %v/%v, want 0/2", res.Score, res.MaxScore)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Questions))
	}
	if r := res.Questions[0]; r.QuestionID != mc.ID || r.Answered || r.IsCorrect {
		t.Errorf("missing answer result = %+v", r)
	}
}

func TestGradeStorySequenceAllOrNothing(t *testing.T) {
	q := question(model.QuestionTypeKidsStorySequence, 3, `[0,1,2]`)
	res := Grade(nil, []model.Question{q}, map[string]json.RawMessage{
		q.ID.String(): json.RawMessage(`[1,0,2]`),
	})
	if res.Questions[0].IsCorrect || res.Score != 0 {
		t.Errorf("result = %+v, want incorrect with zero points", res.Questions[0])
	}
}

func TestGradeFractionalAndIdempotent(t *testing.T) {
	pair := question(model.QuestionTypeKidsPicturePairing, 9, "")
	sel := question(model.QuestionTypeMultipleSelect, 3, `["x","y"]`)
	bad := model.Question{ID: uuid.New(), Type: model.QuestionTypeNumeric, Points: 1, CorrectAnswer: json.RawMessage(`{`)}
	questions := []model.Question{pair, sel, bad}
	answers := map[string]json.RawMessage{
		pair.ID.String(): json.RawMessage(`[0,0,1,2,2,2]`),
		sel.ID.String():  json.RawMessage(`"y||x"`),
		bad.ID.String():  json.RawMessage(`1`),
	}

	first := Grade(nil, questions, answers)
	second := Grade(nil, questions, answers)

	if first.Score != 9 || first.MaxScore != 13 {
		t.Fatalf("score = %v/%v, want 9/13", first.Score, first.MaxScore)
	}
	if first.Score != second.Score || first.MaxScore != second.MaxScore || first.Percentage != second.Percentage {
		t.Errorf("grading not idempotent: %+v vs %+v", first, second)
	}
}
