package export

import (
	"github.com/debai-app/debai/internal/ocr"
)

// ReportFilename is the download name of a session report
const ReportFilename = "debai_report.pdf"

// OCRTextFilename is the download name for extracted text of the given upload kind
func OCRTextFilename(kind ocr.Kind) string {
	if kind == ocr.KindPDF {
		return "pdf_ocr_output.txt"
	}
	return "image_ocr_output.txt"
}
