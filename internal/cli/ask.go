// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command.
//
// Command: ask [question]
//
// Examples:
//   dxchat ask "What is the capital of France?"
//   dxchat ask --json "Summarize NDJSON in one line"
//   dxchat ask --stream --model qwen2.5 "Write a haiku"

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// HandleAskCommand asks args.Query once and prints the reply to stdout.
func HandleAskCommand(ctx context.Context, app *App, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return RunAsk(ctx, app, args, os.Stdout)
}

// RunAsk runs one request cycle for args.Query and writes the result to out.
// A failed request is returned as an error so the exit code reflects it.
func RunAsk(ctx context.Context, app *App, args Args, out io.Writer) error {
	if args.JSON {
		return OutputJSON(out, "ask", func() (any, error) {
			return ask(ctx, app, args, nil)
		})
	}

	streamed := false
	var printed int
	onPartial := func(text string) {
		streamed = true
		if len(text) > printed {
			fmt.Fprint(out, text[printed:])
			printed = len(text)
		}
	}

	data, err := ask(ctx, app, args, onPartial)
	if err != nil {
		if streamed {
			fmt.Fprintln(out)
		}
		return err
	}

	if streamed {
		if printed < len(data.Response) {
			fmt.Fprint(out, data.Response[printed:])
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, RenderReply(data.Response, args.Plain))
	}

	if !args.Quiet && args.Verbose {
		fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%s, %s, %dms", data.Model, data.Outcome, data.DurationMs)))
	}
	return nil
}

// ask submits the question and collects the reply. onPartial may be nil.
func ask(ctx context.Context, app *App, args Args, onPartial func(string)) (*AskData, error) {
	app.Session.OnPartial(onPartial)
	defer app.Session.OnPartial(nil)

	opts := app.Session.Options()
	start := time.Now()
	outcome, err := app.Session.Submit(ctx, args.Query)
	if err != nil {
		return nil, err
	}

	data := &AskData{
		Question:   args.Query,
		Model:      opts.Model,
		Outcome:    outcome.String(),
		Streaming:  opts.Mode == ollama.ModeStreaming,
		DurationMs: time.Since(start).Milliseconds(),
		Alerts:     app.Session.AlertMessages(),
	}

	if outcome != conversation.OutcomeReplied {
		cause := app.Session.LastFailure()
		if cause == nil {
			cause = fmt.Errorf("no reply (%s)", outcome)
		}
		return data, NewCommandError("ask", "request", conversation.AlertConnectionFailed, cause)
	}

	msgs := app.Session.Messages()
	data.Response = msgs[len(msgs)-1].Text
	return data, nil
}
