package util

import "errors"

var (
	ErrSubjectNotFound       = errors.New("subject not found")
	ErrBlockNotFound         = errors.New("block not found")
	ErrInsufficientQuestions = errors.New("not enough questions in subject pool")
	ErrEmptyBlock            = errors.New("block has no questions")
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrUnknownQuestion       = errors.New("question does not belong to attempt")
)
