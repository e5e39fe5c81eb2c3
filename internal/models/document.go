package models

import "time"

// Document is the metadata record for an uploaded file. OCRText stays nil until
// the ingestion stage stores the recognized text.
type Document struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	FileType  string    `json:"file_type" db:"file_type"`
	FileSize  string    `json:"file_size" db:"file_size"`
	OCRText   *string   `json:"ocr_text,omitempty" db:"ocr_text"`
	BlobKey   string    `json:"blob_key,omitempty" db:"blob_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasText reports whether OCR text has been ingested for the document.
func (d *Document) HasText() bool {
	return d.OCRText != nil
}
