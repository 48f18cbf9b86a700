// internal/models/document.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type DocumentSource string

const (
	DocumentStructured DocumentSource = "structured"
	DocumentInline     DocumentSource = "inline"
)

// DocumentRef is either a row in application_documents (Structured) or an
// entry of the legacy inline JSONB blob on the application (Inline). Readers
// always see the normalized Document shape.
type DocumentRef struct {
	Source DocumentSource
	ID     string
	Blob   json.RawMessage
}

func Structured(id string) DocumentRef {
	return DocumentRef{Source: DocumentStructured, ID: id}
}

func Inline(blob json.RawMessage) DocumentRef {
	return DocumentRef{Source: DocumentInline, Blob: blob}
}

// Document is the normalized document shape.
type Document struct {
	ID            string         `json:"id,omitempty"`
	ApplicationID string         `json:"applicationId"`
	DocumentType  string         `json:"documentType"`
	FileName      string         `json:"fileName"`
	StorageKey    string         `json:"storageKey"`
	MimeType      string         `json:"mimeType,omitempty"`
	SizeBytes     int64          `json:"sizeBytes,omitempty"`
	Source        DocumentSource `json:"source"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// DocumentTypePhoto is counted toward the minimum property photo rule.
const DocumentTypePhoto = "property_photo"

// inlineDocument accepts the key spellings found in legacy JSONB blobs.
type inlineDocument struct {
	Type       string `json:"type"`
	DocType    string `json:"documentType"`
	Name       string `json:"name"`
	FileName   string `json:"fileName"`
	URL        string `json:"url"`
	FilePath   string `json:"filePath"`
	StorageKey string `json:"storageKey"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// NormalizeInline decodes one legacy inline entry.
func NormalizeInline(applicationID string, blob json.RawMessage) (Document, error) {
	var raw inlineDocument
	if err := json.Unmarshal(blob, &raw); err != nil {
		return Document{}, fmt.Errorf("decode inline document: %w", err)
	}
	doc := Document{
		ApplicationID: applicationID,
		DocumentType:  firstNonEmpty(raw.DocType, raw.Type),
		FileName:      firstNonEmpty(raw.FileName, raw.Name),
		StorageKey:    firstNonEmpty(raw.StorageKey, raw.FilePath, raw.URL),
		MimeType:      raw.MimeType,
		SizeBytes:     raw.SizeBytes,
		Source:        DocumentInline,
	}
	if doc.SizeBytes == 0 {
		doc.SizeBytes = raw.Size
	}
	if doc.DocumentType == "" || doc.StorageKey == "" {
		return Document{}, fmt.Errorf("inline document missing type or storage key")
	}
	if doc.FileName == "" {
		doc.FileName = doc.StorageKey
	}
	return doc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
