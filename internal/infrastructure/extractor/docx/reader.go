package docx

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reader returns body paragraphs of a .docx file by reading
// word/document.xml from the ZIP archive. Paragraphs inside tables and
// text boxes are not part of the body and are skipped; empty paragraphs are
// kept so that paragraph counts match what a word processor shows.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Paragraphs(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return parseParagraphs(rc)
}

func parseParagraphs(src io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(src)

	var (
		paragraphs  []string
		current     strings.Builder
		inParagraph bool
		inRun       bool
		inText      bool
		nested      int
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl", "txbxContent":
				nested++
			case "p":
				if nested == 0 {
					inParagraph = true
					current.Reset()
				}
			case "r":
				if nested == 0 {
					inRun = inParagraph
				}
			case "t":
				inText = inParagraph && nested == 0
			case "tab":
				// w:tab outside a run is a tab stop definition in w:pPr
				if inRun && nested == 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inRun && nested == 0 {
					current.WriteByte('\n')
				}
			}

		case xml.CharData:
			if inText {
				current.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "tbl", "txbxContent":
				if nested > 0 {
					nested--
				}
			case "t":
				inText = false
			case "r":
				if nested == 0 {
					inRun = false
				}
			case "p":
				if inParagraph && nested == 0 {
					inParagraph = false
					paragraphs = append(paragraphs, current.String())
				}
			}
		}
	}

	return paragraphs, nil
}
