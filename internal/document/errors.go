package document

import "errors"

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidFile     = errors.New("invalid file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidDocument = errors.New("invalid document")
)
