package labels

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls per-page plain text out of a PDF on disk
type TextExtractor interface {
	PageTexts(path string) ([]string, error)
}

// PDFTextExtractor extracts page text with a pure-Go PDF reader. Pages whose
// text cannot be decoded yield an empty string instead of aborting the
// document, so one bad page never loses the rest of the batch.
type PDFTextExtractor struct{}

// NewPDFTextExtractor builds the default extractor
func NewPDFTextExtractor() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

// PageTexts implements TextExtractor
func (e *PDFTextExtractor) PageTexts(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	texts := make([]string, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}
