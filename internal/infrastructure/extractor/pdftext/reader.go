package pdftext

import (
	"context"
	"fmt"
	"os"

	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
	"github.com/ledongthuc/pdf"
)

// Opener reads the embedded text layer of PDFs with ledongthuc/pdf.
type Opener struct{}

func NewOpener() *Opener {
	return &Opener{}
}

func (o *Opener) Open(ctx context.Context, path string) (doc ports.PDFDocument, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("open pdf %s: parser panic: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &document{file: f, reader: r}, nil
}

type document struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *document) NumPages() int {
	return d.reader.NumPage()
}

// PageText returns the plain text of the zero-based page index.
func (d *document) PageText(index int) (text string, err error) {
	if index < 0 || index >= d.reader.NumPage() {
		return "", fmt.Errorf("page index %d out of range", index)
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("page %d: parser panic: %v", index+1, r)
		}
	}()

	// pages are 1-indexed in ledongthuc/pdf
	p := d.reader.Page(index + 1)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", index+1, err)
	}
	return text, nil
}

func (d *document) Close() error {
	return d.file.Close()
}
