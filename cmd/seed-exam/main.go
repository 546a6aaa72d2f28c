package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exam-proctor/internal/config"
	"github.com/stemsi/exam-proctor/internal/database"
	"github.com/stemsi/exam-proctor/internal/logger"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
	"github.com/stemsi/exam-proctor/internal/service"
	"golang.org/x/term"
)

func main() {
	title := flag.String("title", "Sample Exam", "Exam title")
	tutor := flag.String("tutor", "seed", "Tutor ID that owns the exam")
	minutes := flag.Int("minutes", 30, "Time limit in minutes, 0 for untimed")
	attempts := flag.Int("attempts", 1, "Attempts per student, 0 for unlimited")
	maxViolations := flag.Int("max-violations", 3, "Violations tolerated before auto-submit, 0 for unlimited")
	childMode := flag.Bool("child", true, "Allow nickname (child mode) attempts")
	windowHours := flag.Int("window", 24, "Hours the exam stays open from now, 0 for no end")
	quizCode := flag.String("quiz-code", "", "Quiz code required to start; prompted for when stdin is a terminal")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	code := strings.TrimSpace(*quizCode)
	if code == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter Quiz Code (blank for none): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read quiz code")
		}
		code = strings.TrimSpace(string(raw))
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	now := time.Now().UTC()
	exam := &model.Exam{
		Title:               *title,
		TutorID:             *tutor,
		StartTime:           &now,
		TimeLimitSeconds:    *minutes * 60,
		MaxViolations:       *maxViolations,
		AttemptLimit:        *attempts,
		ChildModeEnabled:    *childMode,
		ShowDetailedResults: true,
		Questions:           sampleQuestions(),
	}
	if *windowHours > 0 {
		end := now.Add(time.Duration(*windowHours) * time.Hour)
		exam.EndTime = &end
	}
	if code != "" {
		hash, err := service.HashQuizCode(code, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash quiz code")
		}
		exam.QuizCodeHash = hash
	}

	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	fmt.Printf("\nSuccess! Exam '%s' created with ID: %s\n", exam.Title, exam.ID)
	for _, q := range exam.Questions {
		fmt.Printf("  %-22s %s\n", q.Type, q.ID)
	}
}

// sampleQuestions returns one question of every type.
func sampleQuestions() []model.Question {
	qs := []model.Question{
		{
			Type:          model.QuestionTypeMultipleChoice,
			Prompt:        "Which planet is closest to the sun?",
			Points:        10,
			Options:       raw([]string{"Venus", "Mercury", "Mars", "Earth"}),
			CorrectAnswer: raw("Mercury"),
		},
		{
			Type:          model.QuestionTypeMultipleSelect,
			Prompt:        "Select every prime number.",
			Points:        10,
			Options:       raw([]string{"2", "4", "5", "9", "11"}),
			CorrectAnswer: raw([]string{"2", "5", "11"}),
		},
		{
			Type:          model.QuestionTypeTrueFalse,
			Prompt:        "Water boils at 100 degrees Celsius at sea level.",
			Points:        5,
			CorrectAnswer: raw(true),
		},
		{
			Type:   model.QuestionTypeShortAnswer,
			Prompt: "Describe the water cycle in two sentences.",
			Points: 10,
		},
		{
			Type:          model.QuestionTypeNumeric,
			Prompt:        "What is 7 multiplied by 8?",
			Points:        5,
			CorrectAnswer: raw(56),
		},
		{
			Type:          model.QuestionTypeKidsPicturePairing,
			Prompt:        "Match each animal with its home.",
			Points:        6,
			Options:       raw(map[string][]string{"left": {"bird", "fish", "bee"}, "right": {"nest", "sea", "hive"}}),
			CorrectAnswer: raw([]int{0, 0, 1, 1, 2, 2}),
		},
		{
			Type:          model.QuestionTypeKidsStorySequence,
			Prompt:        "Put the story pictures in order.",
			Points:        5,
			Options:       raw([]string{"seed", "sprout", "flower", "fruit"}),
			CorrectAnswer: raw([]int{0, 1, 2, 3}),
		},
		{
			Type:          model.QuestionTypeKidsColorPicker,
			Prompt:        "What color is the sky on a clear day?",
			Points:        4,
			Options:       raw([]string{"Red", "Blue", "Green"}),
			CorrectAnswer: raw("blue"),
		},
		{
			Type:          model.QuestionTypeKidsOddOneOut,
			Prompt:        "Which one is not a fruit?",
			Points:        4,
			Options:       raw([]string{"apple", "banana", "carrot", "mango"}),
			CorrectAnswer: raw("carrot"),
		},
	}
	for i := range qs {
		qs[i].OrderNum = i + 1
	}
	return qs
}

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
