package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/types"
	"github.com/vango-go/vai-converse/pkg/render"
	converse "github.com/vango-go/vai-converse/sdk"
)

const helpText = "Commands: /listen, /stop, /voice on|off, /end, /help. Anything else is sent as text."

// controller is the part of a Conversation driven by typed input.
type controller interface {
	SubmitText(text string) error
	StartListening() error
	StopListening()
	SetVoiceEnabled(enabled bool)
	End() types.Summary
}

// handleLine applies one line of input and returns a notification to
// show locally, if any.
func handleLine(c controller, line string) *converse.Notification {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := c.SubmitText(line); err != nil {
			return errorNotice(err)
		}
		return nil
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/listen":
		if err := c.StartListening(); err != nil {
			return errorNotice(err)
		}
	case "/stop":
		c.StopListening()
	case "/voice":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return &converse.Notification{Severity: converse.SeverityWarning, Message: "Usage: /voice on|off"}
		}
		c.SetVoiceEnabled(fields[1] == "on")
	case "/end", "/quit":
		c.End()
	case "/help":
		return &converse.Notification{Severity: converse.SeverityInfo, Message: helpText}
	default:
		return &converse.Notification{Severity: converse.SeverityWarning, Message: "Unknown command " + fields[0] + ". " + helpText}
	}
	return nil
}

func errorNotice(err error) *converse.Notification {
	ce := core.AsError(err)
	sev := converse.SeverityWarning
	if ce.Type == core.ErrDevice && !ce.IsRetryable() {
		sev = converse.SeverityError
	}
	return &converse.Notification{Severity: sev, Message: ce.UserMessage(), Err: err}
}

type sessionOptions struct {
	noExport  bool
	exportDir string
}

// runConversation joins sessionID and drives it from stdin until the
// participant ends it, the connection is lost, or the process is
// interrupted.
func runConversation(ctx context.Context, deps *Dependencies, sessionID, agentName string, opts sessionOptions) error {
	r := deps.Renderer
	devices, cleanup, warnings := buildDevices(deps.Config, deps.Logger)
	defer cleanup()
	for _, w := range warnings {
		r.Notice(converse.Notification{Severity: converse.SeverityWarning, Message: w})
	}

	client := deps.newClient()
	conv := client.NewConversation(sessionID, agentName, devices,
		converse.WithVoiceOutput(deps.Config.Voice.Enabled),
		converse.WithRecognition(deps.Config.Recognition()),
		converse.WithUtterance(deps.Config.Utterance()),
		converse.WithLevelInterval(deps.Config.Voice.LevelInterval),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- conv.Run(ctx) }()

	lines := readLines(os.Stdin)
	v := &view{renderer: r, out: os.Stdout}
	r.Notice(converse.Notification{Severity: converse.SeverityInfo, Message: helpText})

loop:
	for {
		select {
		case n := <-conv.Notifications():
			r.Notice(n)
		case <-conv.Changes():
			v.update(conv.Snapshot())
		case line, ok := <-lines:
			if !ok {
				lines = nil
				conv.End()
				continue
			}
			if n := handleLine(conv, line); n != nil {
				r.Notice(*n)
			}
		case <-conv.Ended():
			break loop
		}
	}

	err := <-runErr
	drainNotifications(conv, r)
	v.update(conv.Snapshot())

	if summary, ok := conv.Summary(); ok {
		r.Summary(summary)
		if !opts.noExport && summary.TotalTurns > 0 {
			dir := opts.exportDir
			if dir == "" {
				dir = deps.Config.ExportDir
			}
			path, saveErr := converse.SaveExport(dir, summary)
			if saveErr != nil {
				deps.Logger.Warn("export failed", "error", saveErr)
			} else {
				r.Notice(converse.Notification{Severity: converse.SeverityInfo, Message: "Summary saved to " + path})
			}
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func drainNotifications(conv *converse.Conversation, r *render.Renderer) {
	for {
		select {
		case n := <-conv.Notifications():
			r.Notice(n)
		default:
			return
		}
	}
}

func readLines(in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}
