package grading

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stemsi/exam-proctor/internal/model"
)

// Outcome is the result of grading one question.
type Outcome struct {
	IsCorrect bool
	Points    float64
}

// Grader grades a single question against the submitted answer.
type Grader interface {
	Grade(q model.Question, submitted Answer) Outcome
}

// gradeFunc compares a submitted answer with the parsed correct answer.
// points is the question's non-negative point value.
type gradeFunc func(submitted, correct Answer, points float64) Outcome

// defaultStoryOrder is the expected order when a story question has no usable key.
var defaultStoryOrder = []int{0, 1, 2}

// TypeGrader dispatches on the question type.
type TypeGrader struct{}

// Default is the grader used by the orchestrator.
var Default Grader = TypeGrader{}

// Grade implements Grader. Unknown types grade as incorrect.
func (TypeGrader) Grade(q model.Question, submitted Answer) Outcome {
	fn, ok := graderFor(q.Type)
	if !ok {
		return Outcome{}
	}
	return fn(submitted, Parse(q.CorrectAnswer), math.Max(q.Points, 0))
}

// graderFor is the closed dispatch table; every model.QuestionTypes entry must have a case.
func graderFor(t model.QuestionType) (gradeFunc, bool) {
	switch t {
	case model.QuestionTypeMultipleChoice,
		model.QuestionTypeTrueFalse,
		model.QuestionTypeShortAnswer:
		return gradeText, true
	case model.QuestionTypeNumeric:
		return gradeNumeric, true
	case model.QuestionTypeMultipleSelect:
		return gradeMultiSelect, true
	case model.QuestionTypeKidsPicturePairing:
		return gradePicturePairing, true
	case model.QuestionTypeKidsStorySequence:
		return gradeStorySequence, true
	case model.QuestionTypeKidsColorPicker:
		return gradeColorPicker, true
	case model.QuestionTypeKidsOddOneOut:
		return gradeOddOneOut, true
	}
	return nil, false
}

func full(points float64) Outcome { return Outcome{IsCorrect: true, Points: points} }

func gradeText(submitted, correct Answer, points float64) Outcome {
	want, ok := correct.Single()
	if !ok {
		return Outcome{}
	}
	want = NormalizeText(want)
	if want == "" {
		return Outcome{}
	}
	got, ok := submitted.Single()
	if !ok || NormalizeText(got) != want {
		return Outcome{}
	}
	return full(points)
}

func gradeNumeric(submitted, correct Answer, points float64) Outcome {
	if o := gradeText(submitted, correct, points); o.IsCorrect {
		return o
	}
	want, ok := correct.Single()
	if !ok {
		return Outcome{}
	}
	got, ok := submitted.Single()
	if !ok {
		return Outcome{}
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if err != nil {
		return Outcome{}
	}
	g, err := strconv.ParseFloat(strings.TrimSpace(got), 64)
	if err != nil {
		return Outcome{}
	}
	if math.Abs(w-g) <= 1e-9*math.Max(1, math.Abs(w)) {
		return full(points)
	}
	return Outcome{}
}

func gradeMultiSelect(submitted, correct Answer, points float64) Outcome {
	wantItems, ok := correct.List()
	if !ok {
		return Outcome{}
	}
	want := normalizeAll(wantItems)
	if len(want) == 0 {
		return Outcome{}
	}
	gotItems, ok := submitted.List()
	if !ok {
		return Outcome{}
	}
	got := normalizeAll(gotItems)
	if len(got) != len(want) {
		return Outcome{}
	}
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			return Outcome{}
		}
	}
	return full(points)
}

// gradePicturePairing reads a flat [left0, right0, left1, right1, ...] list.
// A pair is correct when both sides carry the same index.
func gradePicturePairing(submitted, correct Answer, points float64) Outcome {
	items, ok := submitted.List()
	if !ok {
		return Outcome{}
	}
	total := len(items) / 2
	if keyItems, ok := correct.List(); ok && len(keyItems) >= 2 && len(keyItems)/2 > total {
		total = len(keyItems) / 2
	}
	if total == 0 {
		return Outcome{}
	}

	matched := 0
	for i := 0; i+1 < len(items); i += 2 {
		left, errL := strconv.Atoi(strings.TrimSpace(items[i]))
		right, errR := strconv.Atoi(strings.TrimSpace(items[i+1]))
		if errL != nil || errR != nil || left != right {
			continue
		}
		matched++
	}

	return Outcome{
		IsCorrect: matched == total,
		Points:    points * float64(matched) / float64(total),
	}
}

func gradeStorySequence(submitted, correct Answer, points float64) Outcome {
	want := defaultStoryOrder
	if keyItems, ok := correct.List(); ok {
		if parsed, ok := ints(keyItems); ok && len(parsed) > 0 {
			want = parsed
		}
	}
	gotItems, ok := submitted.List()
	if !ok {
		return Outcome{}
	}
	got, ok := ints(gotItems)
	if !ok || len(got) != len(want) {
		return Outcome{}
	}
	for i := range want {
		if want[i] != got[i] {
			return Outcome{}
		}
	}
	return full(points)
}

func gradeColorPicker(submitted, correct Answer, points float64) Outcome {
	return gradeExactToken(submitted, correct, points, strings.ToLower)
}

func gradeOddOneOut(submitted, correct Answer, points float64) Outcome {
	return gradeExactToken(submitted, correct, points, nil)
}

// gradeExactToken compares trimmed single values, optionally through fold.
func gradeExactToken(submitted, correct Answer, points float64, fold func(string) string) Outcome {
	want, ok := correct.Single()
	if !ok {
		return Outcome{}
	}
	got, ok := submitted.Single()
	if !ok {
		return Outcome{}
	}
	want, got = strings.TrimSpace(want), strings.TrimSpace(got)
	if fold != nil {
		want, got = fold(want), fold(got)
	}
	if want == "" || want != got {
		return Outcome{}
	}
	return full(points)
}
