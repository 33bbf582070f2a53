package labels

import (
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageSplitter writes a subset of a source PDF's pages into a new file
type PageSplitter interface {
	// ExtractPages copies the given 1-based pages of src into dst,
	// preserving their relative order.
	ExtractPages(src, dst string, pages []int) error
}

// PDFCPUSplitter splits PDFs with pdfcpu's page collection operation
type PDFCPUSplitter struct{}

// NewPDFCPUSplitter builds the default splitter
func NewPDFCPUSplitter() *PDFCPUSplitter {
	return &PDFCPUSplitter{}
}

// ExtractPages implements PageSplitter
func (s *PDFCPUSplitter) ExtractPages(src, dst string, pages []int) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages selected for %s", dst)
	}
	selection := make([]string, len(pages))
	for i, p := range pages {
		selection[i] = strconv.Itoa(p)
	}
	if err := api.CollectFile(src, dst, selection, nil); err != nil {
		return fmt.Errorf("collect pages into %s: %w", dst, err)
	}
	return nil
}
