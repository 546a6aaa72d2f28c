package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice     QuestionType = "multiple_choice"
	QuestionTypeMultipleSelect     QuestionType = "multiple_select"
	QuestionTypeTrueFalse          QuestionType = "true_false"
	QuestionTypeShortAnswer        QuestionType = "short_answer"
	QuestionTypeNumeric            QuestionType = "numeric"
	QuestionTypeKidsPicturePairing QuestionType = "kids_picture_pairing"
	QuestionTypeKidsStorySequence  QuestionType = "kids_story_sequence"
	QuestionTypeKidsColorPicker    QuestionType = "kids_color_picker"
	QuestionTypeKidsOddOneOut      QuestionType = "kids_odd_one_out"
)

// QuestionTypes lists every declared question type.
var QuestionTypes = []QuestionType{
	QuestionTypeMultipleChoice,
	QuestionTypeMultipleSelect,
	QuestionTypeTrueFalse,
	QuestionTypeShortAnswer,
	QuestionTypeNumeric,
	QuestionTypeKidsPicturePairing,
	QuestionTypeKidsStorySequence,
	QuestionTypeKidsColorPicker,
	QuestionTypeKidsOddOneOut,
}

// Valid reports whether t is a declared question type.
func (t QuestionType) Valid() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AutoGraded reports whether questions of this type are graded by the engine.
// Short answers are reviewed manually.
func (t QuestionType) AutoGraded() bool {
	return t.Valid() && t != QuestionTypeShortAnswer
}

// Question is a single exam question including its grading key.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Type          QuestionType    `json:"type"`
	Prompt        string          `json:"prompt"`
	Points        float64         `json:"points"`
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	OrderNum      int             `json:"order_num"`
}
