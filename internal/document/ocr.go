package document

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer turns one rendered page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractEngine recognizes text with libtesseract. Each call uses its own
// client, so one engine may serve concurrent pages.
type TesseractEngine struct {
	language      string
	dpi           int
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(language string, dpi int) *TesseractEngine {
	return &TesseractEngine{
		language:      language,
		dpi:           dpi,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	defer c.Close()

	if e.language != "" {
		if err := c.SetLanguage(e.language); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
