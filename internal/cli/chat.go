// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat with input history.
//
// Command: chat
//
// Examples:
//   dxchat chat                     Chat with the configured model
//   dxchat chat --model qwen2.5     Use another model
//   dxchat chat --stream            Print replies as they arrive
//
// Interactive commands:
//   /help, /h            Show available commands
//   /clear, /c           Dismiss pending alerts (also /clear-alerts)
//   /history             Show the transcript
//   /export [md|json]    Save the transcript in the working directory
//   /status, /s          Show session state and options
//   /quit, /q            Exit chat
//   Ctrl+C               Cancel the reply being generated
//   Ctrl+D               Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/export"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// HistoryFileName is the liner history file inside the config directory.
const HistoryFileName = "chat_history"

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI opens a line editor with history loaded from historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads a line, adding non-blank input to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history (owner read/write only) and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// DefaultHistoryFile returns the history path in the config directory, or
// in the temp directory when there is no home directory.
func DefaultHistoryFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, HistoryFileName)
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// LineReader supplies chat input. io.EOF or liner.ErrPromptAborted ends the
// chat.
type LineReader interface {
	ReadInput(prompt string) (string, error)
}

// chatRunner holds what one chat needs.
type chatRunner struct {
	app     *App
	out     io.Writer
	quiet   bool
	plain   bool
	started time.Time

	// exportDir receives /export files
	exportDir string

	// printed is how much of the streaming reply has been written
	printed  int
	streamed bool
}

// HandleChatCommand runs the interactive chat until the user quits.
func HandleChatCommand(ctx context.Context, app *App, args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	input := NewChatCLI(DefaultHistoryFile())
	defer input.Close()

	_ = app.WatchConfig(ctx, app.Session.SetOptions)

	return RunChat(ctx, app, input, os.Stdout, args)
}

// RunChat reads lines from in and submits them until EOF or /quit.
// args supplies the Quiet and Plain display flags.
func RunChat(ctx context.Context, app *App, in LineReader, out io.Writer, args Args) error {
	r := &chatRunner{app: app, out: out, quiet: args.Quiet, plain: args.Plain, started: time.Now(), exportDir: "."}

	app.Session.OnPartial(r.printPartial)
	defer app.Session.OnPartial(nil)

	if !r.quiet {
		r.printWelcome(ctx)
	}

	for {
		line, err := in.ReadInput(UserPromptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(out)
				r.printExitSummary()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if !r.handleSlashCommand(line) {
				r.printExitSummary()
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			r.printExitSummary()
			return nil
		}

		if err := r.send(ctx, line); err != nil {
			fmt.Fprintf(out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// send runs one request cycle. Ctrl+C cancels it without leaving the chat.
func (r *chatRunner) send(parent context.Context, text string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	r.printed, r.streamed = 0, false
	before := len(r.app.Session.Messages())

	outcome, err := r.app.Session.Submit(ctx, text)
	if err != nil {
		return err
	}

	switch outcome {
	case conversation.OutcomeReplied:
		if r.streamed {
			// Partial text is already on screen; print what the last
			// chunk did not cover.
			msgs := r.app.Session.Messages()
			reply := msgs[len(msgs)-1].Text
			if r.printed < len(reply) {
				fmt.Fprint(r.out, reply[r.printed:])
			}
			fmt.Fprintln(r.out)
		} else {
			r.printNew(before)
		}

	case conversation.OutcomeFailed:
		if r.streamed {
			fmt.Fprintln(r.out)
		}
		if ctx.Err() != nil {
			fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
		}
		r.printNew(before)
		r.printAlerts()

	case conversation.OutcomeBlocked:
		r.printAlerts()
		fmt.Fprintln(r.out, DimStyle.Render("Message saved but not sent. Type /clear to dismiss alerts."))
	}
	return nil
}

// printPartial writes the part of the accumulated reply not yet printed.
func (r *chatRunner) printPartial(text string) {
	if !r.streamed {
		r.streamed = true
		fmt.Fprint(r.out, AssistantNameStyle.Render(model.Assistant.Name()+"> "))
	}
	if len(text) > r.printed {
		fmt.Fprint(r.out, text[r.printed:])
		r.printed = len(text)
	}
}

// printNew prints assistant messages stored after index from.
func (r *chatRunner) printNew(from int) {
	msgs := r.app.Session.Messages()
	if from > len(msgs) {
		return
	}
	for _, msg := range msgs[from:] {
		if msg.Author.ID != model.AssistantID {
			continue
		}
		fmt.Fprintf(r.out, "%s\n%s\n", AssistantNameStyle.Render(msg.Author.Name()+">"), RenderReply(msg.Text, r.plain))
	}
}

func (r *chatRunner) printAlerts() {
	for _, a := range r.app.Session.AlertMessages() {
		fmt.Fprintf(r.out, "%s %s\n", RenderStatus("warn"), WarningStyle.Render(a))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a /command and reports whether to keep chatting.
func (r *chatRunner) handleSlashCommand(line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/q", "/exit":
		return false

	case "/help", "/h", "/?":
		r.printHelp()

	case "/clear", "/c", "/clear-alerts":
		n := r.app.Session.ClearAlerts()
		fmt.Fprintf(r.out, "%s %d %s cleared\n", RenderStatus("ok"), n, plural(n, "alert", "alerts"))

	case "/history":
		r.printHistory()

	case "/export":
		format := ""
		if len(fields) > 1 {
			format = fields[1]
		}
		r.exportTranscript(format)

	case "/status", "/s":
		r.printStatus()

	default:
		fmt.Fprintf(r.out, "%s unknown command %s (type /help)\n", RenderStatus("warn"), fields[0])
	}
	return true
}

func (r *chatRunner) printWelcome(ctx context.Context) {
	opts := r.app.Session.Options()
	fmt.Fprintln(r.out, TitleStyle.Render("dxchat"))
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Endpoint:"), ValueStyle.Render(r.app.Config.Endpoint.URL))
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Model:"), ValueStyle.Render(opts.Model))
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Replies:"), ValueStyle.Render(opts.Mode.String()))

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.app.Client.CheckRunning(checkCtx); err != nil {
		fmt.Fprintf(r.out, "%s %s\n", RenderStatus("warn"),
			WarningStyle.Render("AI server is not reachable; messages will raise alerts until it is."))
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(r.out)
}

func (r *chatRunner) printHelp() {
	fmt.Fprintln(r.out, SectionStyle.Render("Commands"))
	for _, row := range [][2]string{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Dismiss pending alerts"},
		{"/history", "Show the transcript"},
		{"/export [md|json]", "Save the transcript to a file"},
		{"/status, /s", "Show session state and options"},
		{"/quit, /q", "Exit chat"},
	} {
		fmt.Fprintf(r.out, "  %s%s\n", RenderLabel(row[0]), row[1])
	}
	fmt.Fprintln(r.out, DimStyle.Render("Ctrl+C cancels the reply being generated, Ctrl+D exits."))
}

func (r *chatRunner) printHistory() {
	msgs := r.app.Session.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No messages yet."))
		return
	}
	for _, msg := range msgs {
		nameStyle := AssistantNameStyle
		if msg.Author.ID == model.UserID {
			nameStyle = UserPromptStyle
		}
		fmt.Fprintf(r.out, "%s %s\n%s\n",
			nameStyle.Render(msg.Author.Name()),
			DimStyle.Render(humanize.Time(msg.Timestamp)),
			WrapText(msg.Text, 0))
	}
}

// exportTranscript writes the transcript into the working directory.
func (r *chatRunner) exportTranscript(format string) {
	exp, err := export.ForFormat(format)
	if err != nil {
		fmt.Fprintf(r.out, "%s %v\n", RenderStatus("warn"), err)
		return
	}
	path, err := export.ToFile(export.Transcript{
		Model:    r.app.Session.Options().Model,
		Messages: r.app.Session.Messages(),
	}, exp, r.exportDir)
	if err != nil {
		fmt.Fprintf(r.out, "%s %v\n", RenderStatus("fail"), err)
		return
	}
	fmt.Fprintf(r.out, "%s exported to %s\n", RenderStatus("ok"), path)
}

func (r *chatRunner) printStatus() {
	s := r.app.Session.Snapshot()
	opts := r.app.Session.Options()
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("State:"), s.State)
	fmt.Fprintf(r.out, "%s%d\n", RenderLabel("Messages:"), len(s.Messages))
	fmt.Fprintf(r.out, "%s%d\n", RenderLabel("Alerts:"), len(s.Alerts))
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Model:"), opts.Model)
	fmt.Fprintf(r.out, "%s%d\n", RenderLabel("History window:"), opts.Window)
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Replies:"), opts.Mode)
	fmt.Fprintf(r.out, "%s%s\n", RenderLabel("On failure:"), opts.FailurePolicy)
	if err := r.app.Session.LastFailure(); err != nil {
		fmt.Fprintf(r.out, "%s%s\n", RenderLabel("Last failure:"), describeFailure(err))
	}
}

func (r *chatRunner) printExitSummary() {
	if r.quiet {
		return
	}
	n := len(r.app.Session.Messages())
	fmt.Fprintf(r.out, "%s\n", DimStyle.Render(fmt.Sprintf("%d %s in %s. Bye!",
		n, plural(n, "message", "messages"), time.Since(r.started).Round(time.Second))))
}

// describeFailure names the failure class of a request error.
func describeFailure(err error) string {
	switch {
	case ollama.IsTimeout(err):
		return "timed out: " + err.Error()
	case ollama.IsConnection(err):
		return "connection failed: " + err.Error()
	case ollama.IsEmptyResponse(err):
		return "empty reply: " + err.Error()
	default:
		return err.Error()
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
