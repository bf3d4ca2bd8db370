package service

import "errors"

var (
	// ErrReportNotFound indicates the report was not located.
	ErrReportNotFound = errors.New("report not found")
	// ErrReportForbidden indicates the actor may not access the report.
	ErrReportForbidden = errors.New("report access forbidden")
	// ErrTextTooShort indicates the submitted essay is below the minimum length.
	ErrTextTooShort = errors.New("text is too short")
	// ErrUnsupportedFileType indicates the uploaded source file is not plain text.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrReportNotCompleted indicates the operation needs a completed analysis.
	ErrReportNotCompleted = errors.New("report analysis is not completed")
	// ErrPoolEmpty indicates no pooled question is available and a refill was started.
	ErrPoolEmpty = errors.New("question pool is empty, please retry shortly")
	// ErrPoolRefilling indicates the pool is empty while a refill is already running.
	ErrPoolRefilling = errors.New("question pool is refilling, please retry shortly")
	// ErrQuestionNotFound indicates no question matched, or it was already answered.
	ErrQuestionNotFound = errors.New("question not found or already answered")
	// ErrParentUnanswered indicates a deep-dive was requested on an unanswered question.
	ErrParentUnanswered = errors.New("parent question has not been answered")
	// ErrEmptyAnswer indicates the answer is blank after sanitizing.
	ErrEmptyAnswer = errors.New("answer must not be empty")
	// ErrAlreadySubmitted indicates the report is already bound to an assignment.
	ErrAlreadySubmitted = errors.New("report already submitted to an assignment")
	// ErrAssignmentNotFound indicates the assignment was not located.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAssignmentNotBound indicates the report has no assignment or the assignment has no rubric.
	ErrAssignmentNotBound = errors.New("report is not bound to an assignment with grading criteria")
	// ErrScoreExceedsMax indicates a grading score surpasses the rubric maximum.
	ErrScoreExceedsMax = errors.New("score exceeds assignment max")
	// ErrAutoGradeNotFound indicates no auto-grade result has been stored.
	ErrAutoGradeNotFound = errors.New("auto-grade result not found")
	// ErrCourseNotFound indicates the course was not located.
	ErrCourseNotFound = errors.New("course not found")
	// ErrSubmissionsExist indicates a delete was refused because reports are bound.
	ErrSubmissionsExist = errors.New("submissions exist for this assignment")
	// ErrCorruptRecord indicates a persisted JSON column could not be decoded.
	ErrCorruptRecord = errors.New("report record is corrupt")
	// ErrSchedulerUnavailable indicates background work could not be queued.
	ErrSchedulerUnavailable = errors.New("background worker unavailable")
)
