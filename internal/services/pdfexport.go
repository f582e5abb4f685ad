package services

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"journey-ai/internal/models"
)

// ExportAnswersPDF renders a journey's assignment answers as a printable
// question/answer sheet.
func ExportAnswersPDF(title string, answers []models.AssignmentAnswer) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.MultiCell(0, 10, "Assignment Answers", "", "L", false)
	if title != "" {
		doc.SetFont("Helvetica", "I", 12)
		doc.MultiCell(0, 8, title, "", "L", false)
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 12)
	for _, answer := range answers {
		doc.SetFont("Helvetica", "B", 12)
		doc.MultiCell(0, 7, "Q: "+answer.Question, "", "L", false)
		doc.SetFont("Helvetica", "", 12)
		doc.SetX(doc.GetX() + 5)
		doc.MultiCell(0, 7, "A: "+answer.Answer, "", "L", false)
		doc.Ln(3)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
