package domain

import "time"

// Activity and grading progress values defined by the assignment-and-grade services.
const (
	ActivityCompleted    = "Completed"
	ActivitySubmitted    = "Submitted"
	ActivityInProgress   = "InProgress"
	GradingFullyGraded   = "FullyGraded"
	GradingPending       = "Pending"
	GradingPendingManual = "PendingManual"
	GradingNotReady      = "NotReady"
)

// GradeSubmission is a score sent back to the Partner.
type GradeSubmission struct {
	UserID           string    `json:"userId"`
	ScoreGiven       float64   `json:"scoreGiven"`
	ScoreMaximum     float64   `json:"scoreMaximum"`
	ActivityProgress string    `json:"activityProgress"`
	GradingProgress  string    `json:"gradingProgress"`
	Timestamp        time.Time `json:"timestamp"`
}
