package a2a

import "fmt"

// PartType is the discriminator for a Part union: exactly one of
// Text, File, or Data is populated according to Type.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

// FilePart references external content by URL, with optional media
// type and filename.
type FilePart struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Part is a discriminated union over Text, File and Data content.
type Part struct {
	Type PartType `json:"type"`

	Text     string         `json:"content,omitempty"`
	File     *FilePart      `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	MimeType string         `json:"mediaType,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

func NewFilePart(file *FilePart) Part {
	return Part{Type: PartTypeFile, File: file}
}

func NewDataPart(data map[string]any, mimeType string) Part {
	if mimeType == "" {
		mimeType = "application/json"
	}
	return Part{Type: PartTypeData, Data: data, MimeType: mimeType}
}

func (p Part) String() string {
	switch p.Type {
	case PartTypeText:
		return p.Text
	case PartTypeFile:
		if p.File != nil {
			return fmt.Sprintf("[file %s]", p.File.URL)
		}
		return "[file]"
	case PartTypeData:
		return fmt.Sprintf("[data %v]", p.Data)
	default:
		return ""
	}
}
