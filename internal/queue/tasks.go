package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	QueueDocuments = "document_queue"
	QueueResults   = "ocr_result_queue"
)

const (
	TypeDocumentUploaded = "document:uploaded"
	TypeOCRCompleted     = "ocr:completed"
)

// UploadMessage announces a stored blob that needs text extraction.
type UploadMessage struct {
	MessageID  string `json:"message_id"`
	DocumentID int64  `json:"document_id"`
	BlobKey    string `json:"blob_key"`
}

// ResultMessage carries the recognized text for a document. Text is arbitrary
// and may be empty.
type ResultMessage struct {
	MessageID  string `json:"message_id"`
	DocumentID int64  `json:"document_id"`
	Text       string `json:"text"`
}

func NewUploadMessage(documentID int64, blobKey string) UploadMessage {
	return UploadMessage{
		MessageID:  uuid.NewString(),
		DocumentID: documentID,
		BlobKey:    blobKey,
	}
}

func NewResultMessage(documentID int64, text string) ResultMessage {
	return ResultMessage{
		MessageID:  uuid.NewString(),
		DocumentID: documentID,
		Text:       text,
	}
}

func DecodeUpload(data []byte) (UploadMessage, error) {
	var msg UploadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.DocumentID <= 0 {
		return msg, fmt.Errorf("%w: document_id must be positive", ErrMalformedMessage)
	}
	if msg.BlobKey == "" {
		return msg, fmt.Errorf("%w: blob_key is empty", ErrMalformedMessage)
	}
	return msg, nil
}

// DecodeResult validates a result envelope. A well-formed message without text
// is reported as ErrEmptyText so ingestion can drop it.
func DecodeResult(data []byte) (ResultMessage, error) {
	var msg ResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.DocumentID <= 0 {
		return msg, fmt.Errorf("%w: document_id must be positive", ErrMalformedMessage)
	}
	if msg.Text == "" {
		return msg, fmt.Errorf("document %d: %w", msg.DocumentID, ErrEmptyText)
	}
	return msg, nil
}
