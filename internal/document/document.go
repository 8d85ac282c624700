// Package document defines the Document model and the Loader that turns
// heterogeneous sources (text files, PDFs, JSON/YAML, web pages) into a
// uniform (content, metadata) record set ready for chunking.
package document

import (
	"strings"
	"time"
)

// Metadata keys produced by the loader and consumed downstream.
const (
	// MetaSource identifies the origin: file path or URL.
	MetaSource = "source"

	// MetaPage is the 1-based page number for paginated formats.
	MetaPage = "page"

	// MetaFileType is the normalized source format ("text", "pdf", "json",
	// "yaml", "web").
	MetaFileType = "file_type"

	// MetaLastUpdated is the RFC3339 load timestamp.
	MetaLastUpdated = "last_updated"

	// MetaChunk is the 0-based chunk index added by the splitter.
	MetaChunk = "chunk"

	// MetaDocType marks canonical/"authoritative" documents; the relevance
	// filter grants them a boost and a lower acceptance bar.
	MetaDocType = "doc_type"

	// MetaScore carries the normalized similarity attached to retrieved
	// sources.
	MetaScore = "score"
)

// DocTypeAuthoritative is the MetaDocType value for canonical documents.
const DocTypeAuthoritative = "authoritative"

// Document is a uniform record of extracted content plus provenance
// metadata. Immutable once produced by the Loader; the splitter derives
// chunks from it rather than mutating it.
type Document struct {
	Content  string
	Metadata map[string]any
}

// New builds a Document stamping the standard metadata fields.
func New(content, source, fileType string) Document {
	return Document{
		Content: content,
		Metadata: map[string]any{
			MetaSource:      source,
			MetaFileType:    fileType,
			MetaLastUpdated: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// Source returns the origin identifier, or "unknown" when absent.
func (d Document) Source() string {
	if s, ok := d.Metadata[MetaSource].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// CloneMetadata returns a shallow copy of the metadata map so derived
// records (chunks, retrieved sources) never alias the original.
func (d Document) CloneMetadata() map[string]any {
	m := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		m[k] = v
	}
	return m
}

// WordCount counts whitespace-separated words in content.
func (d Document) WordCount() int {
	return len(strings.Fields(d.Content))
}
