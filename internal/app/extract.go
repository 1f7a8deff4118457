package app

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"bookhabit/pkg/domain"
	"bookhabit/pkg/lookup"
)

// maxExtractBytes bounds how much of a stored file is read for extraction.
const maxExtractBytes = 64 << 20

// extractText resolves a book's source to raw text. ISBN books have no
// source document, so they yield empty text and the generator works from
// metadata alone.
func (a *App) extractText(ctx context.Context, book domain.Book) (string, error) {
	switch book.Method {
	case domain.SourceFile:
		return a.extractFromStorage(ctx, book)
	case domain.SourceURL:
		return a.fetcher.FetchText(ctx, book.SourceURL)
	case domain.SourceDrive:
		fileID, ok := lookup.DriveFileID(book.DriveURL)
		if !ok {
			return "", fmt.Errorf("no file id in drive link")
		}
		return a.fetcher.FetchText(ctx, lookup.DriveDownloadURL(fileID))
	case domain.SourceISBN:
		return "", nil
	default:
		return "", fmt.Errorf("unknown source method %q", book.Method)
	}
}

func (a *App) extractFromStorage(ctx context.Context, book domain.Book) (string, error) {
	obj, err := a.objects.Get(ctx, book.StorageKey)
	if err != nil {
		return "", fmt.Errorf("fetch stored file: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(io.LimitReader(obj, maxExtractBytes))
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}
	return extractDocumentText(book.OriginalFilename, data)
}

// extractDocumentText picks an extractor by file extension.
func extractDocumentText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDFText(data)
	case ".epub":
		return extractEPUBText(data)
	case ".txt", ".md":
		return normalizeText(string(data)), nil
	default:
		return "", fmt.Errorf("no extractor for %q", filename)
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	text := normalizeText(sb.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}

// extractEPUBText reads the XHTML chapter documents out of the EPUB zip in
// archive order and strips them to visible text.
func extractEPUBText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	var chapters []*zip.File
	for _, f := range zr.File {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".xhtml", ".html", ".htm":
			chapters = append(chapters, f)
		}
	}
	if len(chapters) == 0 {
		return "", fmt.Errorf("epub contains no chapter documents")
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Name < chapters[j].Name })

	var sb strings.Builder
	for _, f := range chapters {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		text, err := lookup.ExtractHTMLText(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
	}
	text := normalizeText(sb.String())
	if text == "" {
		return "", fmt.Errorf("epub contains no extractable text")
	}
	return text, nil
}

// normalizeText collapses runs of whitespace inside lines and trims the
// result, keeping line breaks meaningful.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
