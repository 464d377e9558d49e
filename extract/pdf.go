package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	log "github.com/sirupsen/logrus"
)

// pdfText joins the text of every page, in page order, with newlines.
// Pages without extractable text contribute "".
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, pageText(r, i))
	}
	return strings.Join(pages, "\n"), nil
}

func pageText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if obj := recover(); obj != nil {
			log.Debugf("pdf page %d: %v", i, obj)
			text = ""
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		log.Debugf("pdf page %d: %s", i, err)
		return ""
	}
	return strings.TrimSpace(text)
}
