package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/debai-app/debai/cli/output"
	"github.com/debai-app/debai/internal/app"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/export"
	"github.com/debai-app/debai/internal/ocr"
)

var (
	ocrSend bool
	ocrSave string
)

var ocrCmd = &cobra.Command{
	Use:   "ocr FILE",
	Short: "Extract text from an image or PDF",
	Long: `Run OCR on an image (PNG, JPEG) or a PDF and print the text. PDF pages
with a text layer are read directly; scanned pages go through Tesseract.

Examples:
  debai ocr receipt.png
  debai ocr letter.pdf --save
  debai ocr letter.pdf --send
  debai ocr letter.pdf --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().BoolVar(&ocrSend, "send", false, "ask the assistant about the extracted text")
	ocrCmd.Flags().StringVar(&ocrSave, "save", "", "also write the text to a file (\"-\" picks the default name)")
	ocrCmd.Flags().Lookup("save").NoOptDefVal = "-"
}

func runOCR(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	extractor, err := app.NewOCR(cfg.OCR, nil)
	if err != nil {
		return err
	}
	defer extractor.Close()

	result, err := extractor.Extract(ctx, data, filepath.Base(path))
	if err != nil {
		return err
	}
	if result.Empty() {
		formatter.PrintWarning(chat.NoTextWarning)
		return nil
	}

	if err := printOCR(result); err != nil {
		return err
	}
	if ocrSave != "" {
		if err := saveOCR(result); err != nil {
			return err
		}
	}
	if !ocrSend {
		return nil
	}

	cfg.OCR.AutoSend = true
	stack, err := newLocalStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	t := newTerminal(stack.service, stack.ocr, cmd.InOrStdin(), cmd.OutOrStdout())
	cycle, err := stack.service.StartOCR(ctx, t.sessionID, result.Text, string(result.Kind), t.observe)
	if err != nil || cycle == nil {
		return err
	}
	_, err = cycle.Run(ctx, t.observe)
	return err
}

func printOCR(result *ocr.Result) error {
	if formatter.Format != output.FormatTable {
		return formatter.Print(result)
	}
	formatter.PrintSuccess(result.Text)
	return nil
}

func saveOCR(result *ocr.Result) error {
	name := ocrSave
	if name == "-" {
		name = export.OCRTextFilename(result.Kind)
	}
	if err := os.WriteFile(name, []byte(result.Text), 0644); err != nil {
		return fmt.Errorf("failed to save OCR text: %w", err)
	}
	fmt.Fprintf(formatter.ErrWriter, "OCR text saved to %s\n", name)
	return nil
}
