package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/debai-app/debai/internal/ai"
	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

// ReportTitle is printed at the top of every report page
const ReportTitle = "DebAI Session Report"

type rgb struct{ r, g, b int }

var (
	userHeaderColor      = rgb{59, 130, 246}
	assistantHeaderColor = rgb{100, 100, 100}
	bodyColor            = rgb{0, 0, 0}
)

// WriteSessionReport renders the transcript as a paginated PDF.
// The system turn is left out; text outside Latin-1 is replaced with '?'.
func WriteSessionReport(w io.Writer, transcript []ai.Message) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(ReportTitle, true)
	doc.SetCreator("DebAI", true)

	doc.SetHeaderFunc(func() {
		doc.SetFont("Arial", "B", 15)
		doc.CellFormat(0, 10, ReportTitle, "", 1, "C", false, 0, "")
		doc.Ln(10)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "C", false, 0, "")
	})

	doc.AddPage()
	doc.SetFont("Arial", "", 12)

	for _, m := range transcript {
		if m.Role == ai.RoleSystem {
			continue
		}

		header := assistantHeaderColor
		if m.Role == ai.RoleUser {
			header = userHeaderColor
		}
		doc.SetTextColor(header.r, header.g, header.b)
		doc.SetFont("Arial", "B", 12)
		doc.CellFormat(0, 10, strings.ToUpper(string(m.Role))+":", "", 1, "", false, 0, "")

		doc.SetTextColor(bodyColor.r, bodyColor.g, bodyColor.b)
		doc.SetFont("Arial", "", 12)
		doc.MultiCell(0, 10, ToLatin1(m.Content), "", "", false)
		doc.Ln(5)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("failed to render session report: %w", err)
	}
	return nil
}

// ToLatin1 maps s to single-byte Latin-1, replacing unencodable runes with '?'.
// The result holds raw Latin-1 bytes, as the core PDF fonts expect.
func ToLatin1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		c, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}
