package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

// IngestService turns uploaded files into study text. PDFs are read locally;
// images go through the model's multimodal input.
type IngestService struct {
	uploadDir string
	gw        *GatewayService
}

func NewIngestService(uploadDir string, gw *GatewayService) *IngestService {
	return &IngestService{uploadDir: uploadDir, gw: gw}
}

// IngestResult is the outcome of one upload.
type IngestResult struct {
	Text  string
	Pages int
}

// TextFromUpload stores the uploaded file and extracts its text based on the
// content type: PDF, image, or plain text.
func (s *IngestService) TextFromUpload(ctx context.Context, filename, mimeType string, src io.Reader) (*IngestResult, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}

	storedPath := filepath.Join(s.uploadDir, uuid.NewString()+filepath.Ext(filename))
	out, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return nil, fmt.Errorf("write file: %w", err)
	}
	out.Close()

	switch {
	case mimeType == "application/pdf" || strings.EqualFold(filepath.Ext(filename), ".pdf"):
		return s.textFromPDF(storedPath)
	case strings.HasPrefix(mimeType, "image/"):
		data, err := os.ReadFile(storedPath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		text, err := s.gw.ExtractTextFromImage(ctx, mimeType, data)
		if err != nil {
			return nil, fmt.Errorf("extract image text: %w", err)
		}
		return &IngestResult{Text: NormalizeText(text)}, nil
	default:
		data, err := os.ReadFile(storedPath)
		if err != nil {
			return nil, fmt.Errorf("read text file: %w", err)
		}
		return &IngestResult{Text: NormalizeText(string(data))}, nil
	}
}

func (s *IngestService) textFromPDF(path string) (*IngestResult, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return &IngestResult{
		Text:  NormalizeText(string(text)),
		Pages: r.NumPage(),
	}, nil
}
