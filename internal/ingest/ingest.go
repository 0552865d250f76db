// Package ingest loads submitted source documents into plain text. PDF
// files are extracted page by page; anything else is treated as UTF-8 text.
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"papercast/internal/services"
)

// Document is the normalized result of loading a source file.
type Document struct {
	Title       string
	Content     string
	Pages       int
	WordCount   int
	ContentHash string
}

// Load reads and normalizes the document at path.
func Load(path string) (Document, error) {
	var empty Document
	info, err := os.Stat(path)
	if err != nil {
		return empty, services.Wrap(services.ErrNotFound, "ingest", "stat source", "Source document not found", err)
	}
	if info.IsDir() {
		return empty, services.Wrap(services.ErrFatal, "ingest", "stat source", "Source path is a directory", nil)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err = loadPDF(path)
	default:
		doc, err = loadText(path)
	}
	if err != nil {
		return empty, err
	}

	doc.Content = strings.TrimSpace(doc.Content)
	if doc.Content == "" {
		return empty, services.Wrap(services.ErrContent, "ingest", "extract text", "Source document contains no extractable text", nil)
	}
	doc.WordCount = len(strings.Fields(doc.Content))
	sum := sha256.Sum256([]byte(doc.Content))
	doc.ContentHash = hex.EncodeToString(sum[:])
	if doc.Title == "" {
		doc.Title = titleFromPath(path)
	}
	return doc, nil
}

func loadText(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, services.Wrap(services.ErrFatal, "ingest", "read source", "Failed to read source document", err)
	}
	if !utf8.Valid(data) {
		return Document{}, services.Wrap(services.ErrContent, "ingest", "read source", "Source document is not valid UTF-8 text", nil)
	}
	content := string(data)
	return Document{
		Title:   titleFromContent(content),
		Content: content,
		Pages:   1,
	}, nil
}

func loadPDF(path string) (Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, services.Wrap(services.ErrContent, "ingest", "open pdf", "Failed to open PDF document", err)
	}
	defer file.Close()

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, services.Wrap(services.ErrContent, "ingest", "extract pdf text",
				fmt.Sprintf("Failed to extract text from page %d", i), err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return Document{
		Content: sb.String(),
		Pages:   pages,
	}, nil
}

func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		const limit = 120
		if len(trimmed) > limit {
			return ""
		}
		return trimmed
	}
	return ""
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	cleaned := strings.TrimSpace(base)
	if cleaned == "" {
		return "Untitled Document"
	}
	return cleaned
}

// Stage copies the source document into the staging directory keyed by its
// content hash so later stages work from a stable path. The copy is
// verified by size and digest; a corrupt copy is removed.
func Stage(stagingDir, sourcePath, contentHash string) (string, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	target := filepath.Join(stagingDir, contentHash+filepath.Ext(sourcePath))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := copyVerified(sourcePath, target); err != nil {
		return "", fmt.Errorf("stage source: %w", err)
	}
	return target, nil
}

func copyVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("digest mismatch: file corrupted during copy")
	}
	return nil
}
