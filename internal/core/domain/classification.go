package domain

type AssignmentOutcome string

const (
	OutcomeModel               AssignmentOutcome = "model"
	OutcomeEmptyDocument       AssignmentOutcome = "empty_document"
	OutcomeClassificationError AssignmentOutcome = "classification_error"
	OutcomeOCRError            AssignmentOutcome = "ocr_error"
)

// CategoryAssignment is the validated result of classifying one document.
type CategoryAssignment struct {
	CategoryID  int               `json:"category_id"`
	Confidence  float64           `json:"confidence"`
	Explanation string            `json:"explanation"`
	Outcome     AssignmentOutcome `json:"outcome"`
}

func (a CategoryAssignment) Fallback() bool {
	return a.Outcome != OutcomeModel
}

// ClassificationRequest is what a backend receives for a single call.
type ClassificationRequest struct {
	RequestID    string
	SystemPrompt string
	UserPrompt   string
	Image        *Image
}
