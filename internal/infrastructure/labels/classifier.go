package labels

import (
	"regexp"
	"strings"
	"time"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

const (
	unknownCourier = "Unknown"
	unknownSKU     = "Unknown"
	maxSKULength   = 50
)

// courierPatterns are tried in order; the first match wins. Ecom Express
// appears on labels with and without the internal space.
var courierPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)ekart`), "Ekart"},
	{regexp.MustCompile(`(?i)delhivery`), "Delhivery"},
	{regexp.MustCompile(`(?i)xpressbees`), "Xpressbees"},
	{regexp.MustCompile(`(?i)bluedart`), "BlueDart"},
	{regexp.MustCompile(`(?i)dtdc`), "DTDC"},
	{regexp.MustCompile(`(?i)shadowfax`), "Shadowfax"},
	{regexp.MustCompile(`(?i)ecom\s*express`), "EcomExpress"},
}

var (
	skuPattern         = regexp.MustCompile(`SKU:\s*([^\n]+)`)
	invoiceDatePattern = regexp.MustCompile(`Invoice Date:\s*(\d{4}-\d{2}-\d{2})`)
	isoDatePattern     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	skuSanitizer       = regexp.MustCompile(`[^\w-]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// TextClassifier derives (date, courier, SKU) from the plain text of a
// label page. Unrecognized couriers and SKUs classify as "Unknown" rather
// than failing; a page with no date takes the run's current date so every
// page always lands in a bucket.
type TextClassifier struct {
	now func() time.Time
}

// NewTextClassifier builds the standard label page classifier
func NewTextClassifier() *TextClassifier {
	return &TextClassifier{now: time.Now}
}

// NewTextClassifierAt builds a classifier with a fixed clock
func NewTextClassifierAt(now func() time.Time) *TextClassifier {
	return &TextClassifier{now: now}
}

// Classify implements domain.PageClassifier
func (c *TextClassifier) Classify(pageText string) domain.PageClassification {
	return domain.PageClassification{
		Date:    c.extractDate(pageText),
		Courier: extractCourier(pageText),
		SKU:     extractSKU(pageText),
	}
}

func extractCourier(text string) string {
	for _, p := range courierPatterns {
		if p.re.MatchString(text) {
			return p.name
		}
	}
	return unknownCourier
}

func extractSKU(text string) string {
	m := skuPattern.FindStringSubmatch(text)
	if m == nil {
		return unknownSKU
	}
	sku := strings.TrimSpace(m[1])
	sku = whitespaceRun.ReplaceAllString(sku, "-")
	sku = skuSanitizer.ReplaceAllString(sku, "")
	if sku == "" {
		return unknownSKU
	}
	if len(sku) > maxSKULength {
		sku = sku[:maxSKULength]
	}
	return sku
}

func (c *TextClassifier) extractDate(text string) string {
	if m := invoiceDatePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := isoDatePattern.FindString(text); m != "" {
		return m
	}
	return c.now().Format("2006-01-02")
}
