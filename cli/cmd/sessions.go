package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/debai-app/debai/cli/output"
	"github.com/debai-app/debai/cli/util"
	"github.com/debai-app/debai/internal/export"
)

var (
	sessionsChatID string
	sessionsFile   string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect sessions on a running server",
	Long: `List, show and export the live sessions of a DebAI server. The server
is taken from --server, DEBAI_SERVER or 'debai config set server URL'.`,
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List live sessions",
	RunE:    runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Show a session and the transcript of one chat",
	Long: `Show the chats of a session and the transcript of the active chat, or
of the chat named with --chat.

Examples:
  debai sessions show 6f1c...
  debai sessions show 6f1c... --chat 91ab... --output yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsShow,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export SESSION_ID",
	Short: "Download a chat as a PDF report",
	Long: `Download the PDF report of the active chat, or of the chat named with --chat.

Examples:
  debai sessions export 6f1c...
  debai sessions export 6f1c... --file notes.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsExport,
}

func init() {
	sessionsShowCmd.Flags().StringVar(&sessionsChatID, "chat", "", "chat to show (default: the active chat)")
	sessionsExportCmd.Flags().StringVar(&sessionsChatID, "chat", "", "chat to export (default: the active chat)")
	sessionsExportCmd.Flags().StringVarP(&sessionsFile, "file", "f", export.ReportFilename, "output file")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	sessions, err := newClient().ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	if len(sessions) == 0 && formatter.Format == output.FormatTable {
		formatter.PrintSuccess("No live sessions.")
		return nil
	}

	data := output.TableData{
		Headers: []string{"ID", "CHATS", "ACTIVE CHAT", "GENERATING", "LAST ACCESS"},
	}
	for _, s := range sessions {
		data.Rows = append(data.Rows, []string{
			s.ID,
			strconv.Itoa(s.Chats),
			s.ActiveChat,
			strconv.FormatBool(s.IsGenerating),
			s.LastAccess.Local().Format(time.DateTime),
		})
	}
	formatter.PrintTable(data)
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := cmd.Context()

	view, err := c.GetSession(ctx, args[0])
	if err != nil {
		return err
	}

	chatID := sessionsChatID
	if chatID == "" {
		chatID = view.ActiveChat
	}
	transcript, err := c.Transcript(ctx, view.ID, chatID)
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(map[string]any{
			"session":    view,
			"transcript": transcript,
		})
	}

	data := output.TableData{Headers: []string{"", "CHAT", "TITLE", "TURNS"}}
	for _, info := range view.ChatList {
		marker := ""
		if info.ID == chatID {
			marker = "*"
		}
		data.Rows = append(data.Rows, []string{marker, info.ID, util.TruncateString(info.Title, 40), strconv.Itoa(info.Turns)})
	}
	formatter.PrintTable(data)
	formatter.PrintSuccess("")
	return formatter.PrintTranscript(transcript.Messages)
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	f, err := os.Create(sessionsFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", sessionsFile, err)
	}

	n, err := newClient().ExportReport(cmd.Context(), args[0], sessionsChatID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(sessionsFile)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Report written to %s (%d bytes)", sessionsFile, n))
	return nil
}
