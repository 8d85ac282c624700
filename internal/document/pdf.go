package document

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
)

// loadPDF extracts PDF text page by page so chunks keep page provenance.
//
// Primary extractor: ledongthuc/pdf. Some real-world PDFs (scanned pages,
// exotic encoders) make it error out; those fall back to lu4p/cat, which
// trades page attribution for robustness and yields one whole-file
// Document.
func (l *Loader) loadPDF(path string) ([]Document, error) {
	docs, err := l.extractPDFPages(path)
	if err == nil {
		return docs, nil
	}

	l.logger.Warn("primary PDF extraction failed, retrying with fallback",
		"path", path, "error", err)

	text, catErr := cat.File(path)
	if catErr != nil {
		return nil, fmt.Errorf("pdf extraction failed (primary: %v): %w", err, catErr)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf extraction produced no text (primary: %w)", err)
	}

	return []Document{New(text, path, "pdf")}, nil
}

func (l *Loader) extractPDFPages(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	var docs []Document
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		doc := New(text, path, "pdf")
		doc.Metadata[MetaPage] = i
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no extractable text in %d pages", numPages)
	}
	return docs, nil
}
