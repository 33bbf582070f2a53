package domain

import (
	"fmt"
	"sort"
)

// PageClassification is the extracted identity of one label page
type PageClassification struct {
	Date    string
	Courier string
	SKU     string
}

// Key renders the classification as the output file stem
func (c PageClassification) Key() string {
	return fmt.Sprintf("%s_%s_%s", c.Date, c.Courier, c.SKU)
}

// PageClassifier derives a classification from the text of one label page.
// Implementations must always return a usable classification, falling back
// to sentinel values for unrecognized text.
type PageClassifier interface {
	Classify(pageText string) PageClassification
}

// PageBucket groups the 1-based page numbers of a source document that
// share a classification
type PageBucket struct {
	Classification PageClassification
	Pages          []int
}

// BucketPages classifies every page of a document and groups pages by
// (date, courier, SKU). Page numbers are 1-based in source order, so each
// input page lands in exactly one bucket and relative order is preserved.
func BucketPages(pageTexts []string, classifier PageClassifier) []PageBucket {
	byKey := make(map[string]*PageBucket)
	var keys []string
	for i, text := range pageTexts {
		c := classifier.Classify(text)
		key := c.Key()
		b, ok := byKey[key]
		if !ok {
			b = &PageBucket{Classification: c}
			byKey[key] = b
			keys = append(keys, key)
		}
		b.Pages = append(b.Pages, i+1)
	}
	sort.Strings(keys)
	out := make([]PageBucket, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}

// TotalPages sums the page counts across buckets
func TotalPages(buckets []PageBucket) int {
	n := 0
	for _, b := range buckets {
		n += len(b.Pages)
	}
	return n
}
