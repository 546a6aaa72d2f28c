package config

type WorkerKeyStruct struct {
	PersistSubmissionAnswersQueue string
	QuestionAnalyticsQueue        string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSubmissionAnswersQueue: "persist_submission_answers_queue",
	QuestionAnalyticsQueue:        "question_analytics_queue",
}
