//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/oshokin/mediamtx-installer/internal/logger"
)

// Prompter asks the operator yes/no questions.
type Prompter interface {
	// Confirm returns true only on explicit consent.
	Confirm(ctx context.Context, question string) (bool, error)
}

// TerminalPrompter reads answers from an interactive terminal.
// Without a terminal every question is answered "no".
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer
	fd  int
}

// NewTerminalPrompter creates a prompter bound to the process standard streams.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:  os.Stdin,
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()), //nolint:gosec // File descriptors fit into int.
	}
}

// Confirm implements Prompter.
func (p *TerminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if !term.IsTerminal(p.fd) {
		logger.WarnKV(ctx, "No interactive terminal, treating the question as declined", "question", question)
		return false, nil
	}

	return askYesNo(ctx, p.in, p.out, question)
}

// StaticPrompter answers every question with the same value, e.g. for --yes.
type StaticPrompter bool

// Confirm implements Prompter.
func (p StaticPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	logger.InfoKV(ctx, "Answering confirmation automatically", "question", question, "answer", bool(p))

	return bool(p), nil
}

// askYesNo writes the question and reads a single line answer.
func askYesNo(ctx context.Context, in io.Reader, out io.Writer, question string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s [y/N]: ", question); err != nil {
		return false, err
	}

	answers := make(chan string, 1)

	go func() {
		line, _ := bufio.NewReader(in).ReadString('\n')
		answers <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answers:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
