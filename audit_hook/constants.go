package audithook

// Action constants for audit events.
const (
	// Chapter actions
	ActionChapterCreated  = "chapter.created"
	ActionChapterUpdated  = "chapter.updated"
	ActionChapterRepriced = "chapter.repriced"
	ActionChapterDeleted  = "chapter.deleted"
	ActionWriterAssigned  = "chapter.writer_assigned"
	ActionFeedbackAdded   = "feedback.added"
	ActionFileAttached    = "file.attached"

	// Payment actions
	ActionPaymentCreated    = "payment.created"
	ActionPaymentProcessing = "payment.processing"
	ActionPaymentCompleted  = "payment.completed"
	ActionPaymentFailed     = "payment.failed"
	ActionPaymentRefunded   = "payment.refunded"
	ActionPaymentDeleted    = "payment.deleted"

	// Earnings actions
	ActionPayoutChecked  = "payout.checked"
	ActionPayoutRejected = "payout.rejected"
)

// Resource constants for audit events.
const (
	ResourceChapter  = "chapter"
	ResourcePayment  = "payment"
	ResourceEarnings = "earnings"
)

// Category constants for audit events.
const (
	CategoryContent  = "content"
	CategoryPayment  = "payment"
	CategoryEarnings = "earnings"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
