package evaluation

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"evalhub/internal/domain/catalog"
)

// RenderReport lays out one evaluation as a PDF: header, a row per catalog
// column with both rating tracks, then the display overalls and narrative.
func RenderReport(e Evaluation, cat *catalog.Catalog) ([]byte, error) {
	if cat == nil {
		cat = catalog.New(nil, catalog.MustAliasTable(catalog.DefaultAliases))
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Performance Evaluation")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s (%s)", e.EmployeeName, e.EmployeeEmail))
	pdf.Ln(7)
	project := e.ProjectName
	if project == "" {
		project = e.ProjectID
	}
	pdf.Cell(0, 8, fmt.Sprintf("Project: %s", project))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s", BucketKey(e)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", EffectiveStatus(e)))
	pdf.Ln(7)
	if e.ReviewerName != nil && *e.ReviewerName != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Reviewer: %s", *e.ReviewerName))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 8, "Competency", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Self", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Manager", "1", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)

	labels := columnLabels(cat)
	if len(labels) == 0 {
		labels = ratedLabels([]Evaluation{e})
	}
	for _, label := range labels {
		pdf.CellFormat(100, 8, label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, scoreText(cat.Lookup(e.EmployeeRatings, label)), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 8, scoreText(cat.Lookup(e.ManagerRatings, label)), "1", 1, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 8, "Overall", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, overallText(EmployeeDisplayOverall(e)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, overallText(ManagerDisplayOverall(e)), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	sections := []struct{ title, body string }{
		{"Achievements", e.Achievements},
		{"Challenges", e.Challenges},
		{"Learnings", e.Learnings},
		{"Goals", e.Goals},
		{"Feedback", e.Feedback},
		{"Manager feedback", e.ManagerFeedback},
		{"Recommendations", e.Recommendations},
	}
	for _, section := range sections {
		if section.body == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, section.title)
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, section.body, "", "L", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scoreText(score int, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%d", score)
}

func overallText(v *float64) string {
	if v == nil {
		return "Not rated"
	}
	return fmt.Sprintf("%.1f", *v)
}
