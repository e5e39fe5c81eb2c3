package document

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	dcconfig "github.com/JaimeStill/document-context/pkg/config"
	dcdocument "github.com/JaimeStill/document-context/pkg/document"
	dcimage "github.com/JaimeStill/document-context/pkg/image"
	"github.com/ledongthuc/pdf"
)

const pdfContentType = "application/pdf"

// Pages gives indexed access to the rendered pages of one file. Page numbers
// start at 1.
type Pages interface {
	Count() int
	Render(page int) ([]byte, error)
	Close() error
}

type Rasterizer interface {
	Open(data []byte) (Pages, error)
}

// ImageMagickRasterizer renders PDF pages to PNG through ImageMagick with a
// contrast boost, then sharpens them for recognition.
type ImageMagickRasterizer struct {
	dpi      int
	contrast int
	sharpen  float64
}

func NewImageMagickRasterizer(dpi, contrast int, sharpen float64) *ImageMagickRasterizer {
	return &ImageMagickRasterizer{dpi: dpi, contrast: contrast, sharpen: sharpen}
}

func (r *ImageMagickRasterizer) imageConfig() dcconfig.ImageConfig {
	cfg := dcconfig.ImageConfig{
		Format:  string(dcdocument.PNG),
		DPI:     r.dpi,
		Options: make(map[string]any),
	}
	if r.contrast != 0 {
		cfg.Options["contrast"] = r.contrast
	}
	return cfg
}

func (r *ImageMagickRasterizer) Open(data []byte) (Pages, error) {
	count, err := pageCount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	tmp, err := os.CreateTemp("", "ocr-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	doc, err := dcdocument.Open(path, pdfContentType)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	renderer, err := dcimage.NewImageMagickRenderer(r.imageConfig())
	if err != nil {
		doc.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	return &pdfPages{
		doc:      doc,
		renderer: renderer,
		path:     path,
		count:    count,
		sharpen:  r.sharpen,
	}, nil
}

func pageCount(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return reader.NumPage(), nil
}

type pdfPages struct {
	mu       sync.Mutex
	doc      dcdocument.Document
	renderer dcimage.Renderer
	path     string
	count    int
	sharpen  float64
}

func (p *pdfPages) Count() int {
	return p.count
}

func (p *pdfPages) Render(page int) ([]byte, error) {
	if page < 1 || page > p.count {
		return nil, fmt.Errorf("page %d out of range 1-%d", page, p.count)
	}

	p.mu.Lock()
	extracted, err := p.doc.ExtractPage(page)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", page, err)
	}

	img, err := extracted.ToImage(p.renderer, nil)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	return Enhance(img, p.sharpen)
}

func (p *pdfPages) Close() error {
	err := p.doc.Close()
	if rerr := os.Remove(p.path); err == nil && rerr != nil && !os.IsNotExist(rerr) {
		err = rerr
	}
	return err
}
