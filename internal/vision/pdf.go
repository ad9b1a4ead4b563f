package vision

import (
	"bytes"
	"errors"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractPDFText pulls the embedded text of a PDF invoice so it can go to
// the model text-only instead of as pixels. Scanned PDFs without a text
// layer come back empty; the caller should fall back to the image path.
func ExtractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("pdf has no extractable text")
	}
	return out, nil
}
