// Package shell is the line-oriented operator surface: it reads messages,
// streams the agent's reply and renders tool activity as it happens.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/codeready-toolchain/sherlog/pkg/agent"
)

const maxPreview = 80

// Sender is the part of agent.Session the shell drives.
type Sender interface {
	Send(ctx context.Context, message string) <-chan agent.Event
}

// Shell runs the prompt loop.
type Shell struct {
	sender Sender
	in     io.Reader
	out    io.Writer
	styles Styles
	banner string

	mu     sync.Mutex
	cancel context.CancelFunc // set while an exchange is in flight
}

// New creates a shell reading from in and writing to out. banner is printed
// once when Run starts; empty prints nothing.
func New(sender Sender, in io.Reader, out io.Writer, banner string) *Shell {
	return &Shell{
		sender: sender,
		in:     in,
		out:    out,
		styles: NewStyles(out),
		banner: banner,
	}
}

// Run loops until exit/quit, end of input or ctx cancellation. Failures of a
// single message are printed and the loop continues.
func (s *Shell) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if s.banner != "" {
		s.println(s.styles.Banner.Render(s.banner))
		s.println(s.styles.Muted.Render("Type exit or quit to leave. Ctrl+C interrupts the current answer."))
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		s.print("\n" + s.styles.Prompt.Render("sherlog>") + " ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			s.println("")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			s.println("")
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
			default:
			}
			return nil
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		s.exchange(ctx, line)
	}
}

// Interrupt cancels the in-flight exchange. It reports false when nothing was
// running, in which case the caller should treat the interrupt as exit.
func (s *Shell) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Shell) exchange(ctx context.Context, message string) {
	msgCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	// text streamed since the last tool call; the final reply is the text of
	// the last oracle turn only
	var streamed strings.Builder
	midLine := false
	terminated := false

	for ev := range s.sender.Send(msgCtx, message) {
		switch e := ev.(type) {
		case agent.EventText:
			s.print(e.Delta)
			streamed.WriteString(e.Delta)
			midLine = !strings.HasSuffix(e.Delta, "\n")

		case agent.EventToolStarted:
			if midLine {
				s.println("")
				midLine = false
			}
			streamed.Reset()
			s.println(s.styles.ToolStart.Render(fmt.Sprintf("  ⚙ %s %s", e.Call.Name, preview(string(e.Call.Input)))))

		case agent.EventToolFinished:
			if e.IsError {
				s.println(s.styles.ToolError.Render(fmt.Sprintf("  ✗ %s: %s", e.Call.Name, preview(e.Result))))
			} else {
				s.println(s.styles.ToolOK.Render("  ✓ " + e.Call.Name))
			}

		case agent.EventDone:
			terminated = true
			if rest, ok := strings.CutPrefix(e.Reply, streamed.String()); ok {
				s.print(rest)
			} else {
				s.print("\n" + e.Reply)
			}
			s.println("")

		case agent.EventError:
			terminated = true
			if midLine {
				s.println("")
			}
			s.printError(e.Err)
		}
	}

	if !terminated && msgCtx.Err() != nil {
		if midLine {
			s.println("")
		}
		s.printError(msgCtx.Err())
	}
}

func (s *Shell) printError(err error) {
	if errors.Is(err, context.Canceled) {
		s.println(s.styles.Muted.Render("(interrupted)"))
		return
	}
	slog.Warn("Message failed", "error", err)
	s.println(s.styles.Error.Render("error: ") + err.Error())
}

func (s *Shell) print(text string) {
	_, _ = io.WriteString(s.out, text)
}

func (s *Shell) println(text string) {
	_, _ = io.WriteString(s.out, text+"\n")
}

// preview flattens v onto one line and shortens it.
func preview(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if utf8.RuneCountInString(v) <= maxPreview {
		return v
	}
	runes := []rune(v)
	return string(runes[:maxPreview-1]) + "…"
}
