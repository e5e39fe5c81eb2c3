package queue

import "errors"

var (
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrPublish          = errors.New("publish failed")
	ErrMalformedMessage = errors.New("malformed message")
	ErrEmptyText        = errors.New("empty OCR text")
)
