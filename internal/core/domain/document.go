package domain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type DocumentType string

const (
	TypePDF   DocumentType = "pdf"
	TypeDOCX  DocumentType = "docx"
	TypeDOC   DocumentType = "doc"
	TypeImage DocumentType = "image"
)

// Document is a file discovered on disk. It is never mutated after discovery.
type Document struct {
	Path    string       `json:"path"`
	Name    string       `json:"name"`
	Type    DocumentType `json:"type"`
	Size    int64        `json:"size"`
	ModTime time.Time    `json:"mod_time"`
}

// DetectType maps a file extension to a supported document type.
func DetectType(path string) (DocumentType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return TypePDF, true
	case ".docx":
		return TypeDOCX, true
	case ".doc":
		return TypeDOC, true
	case ".png", ".jpg", ".jpeg":
		return TypeImage, true
	default:
		return "", false
	}
}

// NewDocument stats the file at path and returns a Document for it.
func NewDocument(path string) (Document, error) {
	docType, ok := DetectType(path)
	if !ok {
		return Document{}, WrapError(ErrUnsupportedFormat, "discover document", fmt.Errorf("extension %q", filepath.Ext(path)))
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, WrapError(ErrDocumentNotFound, "discover document", err)
		}
		return Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return Document{}, WrapError(ErrInvalidInput, "discover document", fmt.Errorf("%s is a directory", path))
	}
	return Document{
		Path:    path,
		Name:    filepath.Base(path),
		Type:    docType,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Open streams the raw file content.
func (d Document) Open() (io.ReadCloser, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	return f, nil
}

// ReadBytes loads the raw file content on demand.
func (d Document) ReadBytes() ([]byte, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.Name, err)
	}
	return data, nil
}

type ExtractionMethod string

const (
	MethodNativePDF ExtractionMethod = "native_pdf"
	MethodOCRPDF    ExtractionMethod = "ocr_pdf"
	MethodWord      ExtractionMethod = "word"
	MethodOCRImage  ExtractionMethod = "ocr_image"
	MethodVision    ExtractionMethod = "vision"
)

type ExtractedText struct {
	Source    Document         `json:"-"`
	Text      string           `json:"text"`
	Truncated bool             `json:"truncated"`
	Method    ExtractionMethod `json:"method"`
	Pages     int              `json:"pages"`
}

type ReducedText struct {
	Text       string `json:"text"`
	WasReduced bool   `json:"was_reduced"`
}

// Image is a raster handed to OCR or a vision model. Path is set when the
// image lives on disk; Data is always populated.
type Image struct {
	Path     string
	MimeType string
	Data     []byte
}

// ImageFromFile reads an image file and guesses its mime type from the extension.
func ImageFromFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Path: path, MimeType: MimeTypeFor(path), Data: data}, nil
}

func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}
