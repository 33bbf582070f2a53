package labels

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
)

// Processor turns one combined label document into per-(date, courier, SKU)
// PDF files. Extraction, classification and splitting are injected so the
// pipeline is testable without real PDFs.
type Processor struct {
	extractor  TextExtractor
	splitter   PageSplitter
	classifier domain.PageClassifier
	logger     *logging.Logger
}

// NewProcessor builds a label processor
func NewProcessor(extractor TextExtractor, splitter PageSplitter, classifier domain.PageClassifier, logger *logging.Logger) *Processor {
	return &Processor{
		extractor:  extractor,
		splitter:   splitter,
		classifier: classifier,
		logger:     logger,
	}
}

// Sort splits the combined label PDF at srcPath into one file per
// (date, courier, SKU) bucket under outDir, named date_courier_sku.pdf.
// Every source page ends up in exactly one output file. The returned
// summary is organized SKU first, then courier.
func (p *Processor) Sort(srcPath, outDir string) (domain.LabelSummary, error) {
	texts, err := p.extractor.PageTexts(srcPath)
	if err != nil {
		return nil, fmt.Errorf("extract label text: %w", err)
	}
	if len(texts) == 0 {
		return domain.LabelSummary{}, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create label directory: %w", err)
	}

	buckets := domain.BucketPages(texts, p.classifier)

	summary := domain.LabelSummary{}
	for _, b := range buckets {
		name := b.Classification.Key() + ".pdf"
		dst := filepath.Join(outDir, name)
		if err := p.splitter.ExtractPages(srcPath, dst, b.Pages); err != nil {
			return nil, fmt.Errorf("split bucket %s: %w", name, err)
		}

		sku := b.Classification.SKU
		if summary[sku] == nil {
			summary[sku] = make(map[string]domain.LabelFile)
		}
		summary[sku][b.Classification.Courier] = domain.LabelFile{
			File:  dst,
			Pages: len(b.Pages),
		}

		p.logger.WithComponent("labels").Info("wrote label bucket",
			slog.String("file", name),
			slog.Int("pages", len(b.Pages)),
		)
	}

	if got := domain.TotalPages(buckets); got != len(texts) {
		return nil, fmt.Errorf("page count mismatch: %d pages in, %d pages bucketed", len(texts), got)
	}
	return summary, nil
}
