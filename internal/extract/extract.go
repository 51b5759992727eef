package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"docbrain/internal/util"

	"github.com/ledongthuc/pdf"
)

// Kind is a supported document format.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindPlain Kind = "plain"
)

var contentTypes = map[string]Kind{
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDOCX,
	"text/plain":    KindPlain,
	"text/markdown": KindPlain,
}

var extensions = map[string]Kind{
	".pdf":      KindPDF,
	".docx":     KindDOCX,
	".txt":      KindPlain,
	".md":       KindPlain,
	".markdown": KindPlain,
}

// Detect resolves the document kind from content type, falling back to the
// filename extension. Unsupported inputs fail with ErrValidation.
func Detect(filename, contentType string) (Kind, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if k, ok := contentTypes[ct]; ok {
		return k, nil
	}
	if k, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unsupported content type %q for %q: %w", contentType, filename, util.ErrValidation)
}

// Text converts raw document bytes into one sanitized text blob. An empty
// result is reported as ErrNoExtractableText so the pipeline can mark the
// document failed instead of embedding nothing.
func Text(raw []byte, kind Kind) (string, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = pdfText(raw)
	case KindDOCX:
		text, err = docxText(raw)
	case KindPlain:
		text = string(raw)
	default:
		return "", fmt.Errorf("unsupported document kind %q: %w", kind, util.ErrValidation)
	}
	if err != nil {
		return "", err
	}
	text = util.SanitizeText(text)
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

func pdfText(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
