package document

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Enhance applies a Gaussian unsharp mask to a rendered page. A non-positive
// sigma returns the image unchanged.
func Enhance(img []byte, sigma float64) ([]byte, error) {
	if sigma <= 0 {
		return img, nil
	}

	src, err := imaging.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Sharpen(src, sigma), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
