// Package extract turns uploaded documents into plain text.
//
// The format is chosen from the declared file name or MIME type, never by
// sniffing the content. Binary formats are staged to a request-scoped
// temporary file that is removed on every exit path. A document that
// cannot be parsed degrades to empty text instead of failing the request.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Format int

const (
	FormatText Format = iota
	FormatPDF
	FormatDocx
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatPDF:
		return "pdf"
	case FormatDocx:
		return "docx"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

type Document struct {
	Format Format
	Text   string
	// Degraded is set when the parser failed and Text was replaced by "".
	Degraded bool
}

type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported file type: " + e.Extension
}

var extFormats = map[string]Format{
	"txt":  FormatText,
	"pdf":  FormatPDF,
	"doc":  FormatDocx,
	"docx": FormatDocx,
}

var mimeFormats = map[string]Format{
	"text/plain":         FormatText,
	"application/pdf":    FormatPDF,
	"application/msword": FormatDocx,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDocx,
}

// Extension returns the lower-cased extension of name without the dot, or,
// when name is a MIME type, the MIME type itself.
func Extension(nameOrMIME string) string {
	s := strings.TrimSpace(nameOrMIME)
	if mt, _, err := mime.ParseMediaType(s); err == nil && strings.Contains(mt, "/") {
		if _, ok := mimeFormats[mt]; ok || filepath.Ext(s) == "" {
			return mt
		}
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(s), "."))
}

// FormatOf decides the format from a file name or a MIME type.
func FormatOf(nameOrMIME string) (Format, error) {
	ext := Extension(nameOrMIME)
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}
	if f, ok := mimeFormats[ext]; ok {
		return f, nil
	}
	return 0, &UnsupportedFormatError{Extension: ext}
}

// oleMagic starts every Word 97-2003 binary file. Only the zip-based
// layout is parsed, so these degrade to empty text.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var ErrLegacyDoc = errors.New("binary Word 97-2003 document, only the .docx layout is readable")

type Extractor struct {
	tempDir string
}

// New returns an Extractor staging binary uploads under tempDir; an empty
// tempDir means os.TempDir().
func New(tempDir string) *Extractor {
	return &Extractor{tempDir: tempDir}
}

// Extract converts data to text. The only error it returns besides context
// cancellation is *UnsupportedFormatError; parser failures are logged and
// reported through Document.Degraded.
func (e *Extractor) Extract(ctx context.Context, data []byte, nameOrMIME string) (*Document, error) {
	format, err := FormatOf(nameOrMIME)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &Document{Format: format}
	switch format {
	case FormatText:
		doc.Text = decodeText(data)
		return doc, nil
	case FormatPDF:
		err = e.stage(data, ".pdf", func(path string) (perr error) {
			doc.Text, perr = pdfText(path)
			return perr
		})
	case FormatDocx:
		if bytes.HasPrefix(data, oleMagic) {
			err = ErrLegacyDoc
			break
		}
		err = e.stage(data, ".docx", func(path string) (perr error) {
			doc.Text, perr = docxText(path)
			return perr
		})
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		log.WithFields(log.Fields{
			"format": format.String(),
			"file":   nameOrMIME,
			"bytes":  len(data),
		}).Warnf("document extraction failed, continuing with empty text: %s", err)
		doc.Text = ""
		doc.Degraded = true
	}
	return doc, nil
}
