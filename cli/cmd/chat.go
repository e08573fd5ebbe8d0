package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/debai-app/debai/cli/util"
	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/app"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/config"
	"github.com/debai-app/debai/internal/export"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/debai-app/debai/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Start an interactive chat without a server. Replies come from Ollama when
it is reachable and from Gemini otherwise.

Commands inside the chat:
  /new            start a new chat
  /chats          list the chats of this session
  /switch ID      make another chat active
  /ocr FILE       extract text from an image or PDF and add it to the chat
  /send           ask about the last OCR text again
  /export FILE    write the active chat as a PDF report
  /quit           leave`,
	RunE: runChat,
}

// localStack is an in-process router, session manager and OCR service
type localStack struct {
	router  *ai.Router
	service *chat.Service
	ocr     *ocr.Service
}

func newLocalStack(ctx context.Context, cfg *config.Config) (*localStack, error) {
	router, err := app.NewRouter(ctx, cfg.AI, nil)
	if err != nil {
		return nil, err
	}
	extractor, err := app.NewOCR(cfg.OCR, nil)
	if err != nil {
		_ = router.Close()
		return nil, err
	}

	opts := app.SessionOptions(cfg)
	opts.TTL = 0
	sessions := session.NewManager(opts)

	return &localStack{
		router:  router,
		service: chat.NewService(sessions, router, chat.WithAutoTitle(cfg.Session.AutoTitle)),
		ocr:     extractor,
	}, nil
}

func (l *localStack) Close() {
	if err := l.router.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close backends")
	}
	if err := l.ocr.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close OCR engine")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stack, err := newLocalStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	if b, ok := stack.router.Select(); ok {
		formatter.PrintSuccess(fmt.Sprintf("Chatting with %s. Type /quit to leave.", b.Label))
	} else {
		formatter.PrintWarning("no backend is available, replies will explain how to enable one")
	}

	t := newTerminal(stack.service, stack.ocr, cmd.InOrStdin(), cmd.OutOrStdout())
	return t.Run(ctx)
}

// terminal is the read-eval loop of the chat command
type terminal struct {
	service   *chat.Service
	ocr       *ocr.Service
	sessionID string
	in        *bufio.Reader
	out       io.Writer
	printed   string
}

func newTerminal(service *chat.Service, extractor *ocr.Service, in io.Reader, out io.Writer) *terminal {
	sess := service.Sessions().Create()
	return &terminal{
		service:   service,
		ocr:       extractor,
		sessionID: sess.ID,
		in:        bufio.NewReader(in),
		out:       out,
	}
}

// Run reads lines until /quit or end of input
func (t *terminal) Run(ctx context.Context) error {
	for {
		line, err := util.ReadLine(t.in, t.out, "> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		quit, err := t.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(t.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one line and reports whether the loop should end
func (t *terminal) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		_, err := t.service.Send(ctx, t.sessionID, line, t.observe)
		return false, err
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		return false, t.newChat()
	case "/chats":
		return false, t.listChats()
	case "/switch":
		return false, t.switchChat(arg)
	case "/ocr":
		return false, t.ingest(ctx, arg)
	case "/send":
		_, err := t.service.SendLastOCR(ctx, t.sessionID, t.observe)
		return false, err
	case "/export":
		return false, t.export(arg)
	default:
		return false, fmt.Errorf("unknown command %s", command)
	}
}

func (t *terminal) session() (*session.Session, error) {
	return t.service.Sessions().Get(t.sessionID)
}

func (t *terminal) newChat() error {
	sess, err := t.session()
	if err != nil {
		return err
	}
	info, err := sess.NewChat()
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Started chat %s\n", info.ID)
	return nil
}

func (t *terminal) listChats() error {
	sess, err := t.session()
	if err != nil {
		return err
	}
	for _, c := range sess.Chats() {
		marker := " "
		if c.Active {
			marker = "*"
		}
		fmt.Fprintf(t.out, "%s %s  %s (%d turns)\n", marker, c.ID, util.TruncateString(c.Title, 40), c.Turns)
	}
	return nil
}

func (t *terminal) switchChat(chatID string) error {
	if chatID == "" {
		return fmt.Errorf("usage: /switch ID")
	}
	sess, err := t.session()
	if err != nil {
		return err
	}
	info, err := sess.SwitchChat(chatID)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Switched to %s\n", info.Title)
	return nil
}

// ingest extracts text from path and adds it to the active chat
func (t *terminal) ingest(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /ocr FILE")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := t.ocr.Extract(ctx, data, filepath.Base(path))
	if err != nil {
		return err
	}

	cycle, err := t.service.StartOCR(ctx, t.sessionID, result.Text, string(result.Kind), t.observe)
	switch {
	case errors.Is(err, chat.ErrNoText):
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(t.out, "--- OCR (%s) ---\n%s\n---\n", result.Kind, result.Text)
	if cycle == nil {
		fmt.Fprintln(t.out, "Text added. Type /send to ask about it.")
		return nil
	}
	_, err = cycle.Run(ctx, t.observe)
	return err
}

func (t *terminal) export(path string) error {
	if path == "" {
		path = export.ReportFilename
	}
	sess, err := t.session()
	if err != nil {
		return err
	}
	messages, err := sess.Transcript("")
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteSessionReport(f, messages); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Report written to %s\n", path)
	return nil
}

// observe prints replies incrementally; content events carry the cumulative text
func (t *terminal) observe(e chat.Event) {
	switch e.Type {
	case chat.EventProgress:
		t.printed = ""
	case chat.EventContent:
		fmt.Fprint(t.out, util.Delta(t.printed, e.Content))
		t.printed = e.Content
	case chat.EventDone:
		fmt.Fprintln(t.out)
	case chat.EventTitle:
		fmt.Fprintf(t.out, "[chat titled %q]\n", e.Title)
	case chat.EventWarning:
		fmt.Fprintf(t.out, "warning: %s\n", e.Message)
	}
}
