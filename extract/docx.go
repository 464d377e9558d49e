package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

var errNoDocumentPart = errors.New("docx: missing " + docxBody)

// docxText returns body paragraphs in document order, one per line.
// Paragraphs inside tables and text boxes are skipped along with any
// non-text content.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer rc.Close()
		paragraphs, err := docxParagraphs(rc)
		if err != nil {
			return "", err
		}
		return strings.Join(paragraphs, "\n"), nil
	}
	return "", errNoDocumentPart
}

func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		cur        strings.Builder
		inPara     bool
		inRun      bool
		inText     bool
		skipDepth  int // >0 while inside w:tbl or w:txbxContent
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl", "txbxContent":
				skipDepth++
			case "p":
				if skipDepth == 0 && !inPara {
					inPara = true
					cur.Reset()
				}
			case "r":
				inRun = inPara && skipDepth == 0
			case "t":
				inText = inRun
			case "tab":
				// w:tab also appears under w:pPr/w:tabs as a tab stop.
				if inRun {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl", "txbxContent":
				skipDepth--
			case "p":
				if skipDepth == 0 && inPara {
					paragraphs = append(paragraphs, cur.String())
					inPara = false
				}
			case "r":
				inRun = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return paragraphs, nil
}
