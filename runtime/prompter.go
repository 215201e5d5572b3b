package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/interaction"
)

// Prompter is the local half of interaction resolution: it presents the
// rendered question and returns the raw answer text. The runtime races it
// against the remote relay; whichever settles first wins.
type Prompter interface {
	Prompt(ctx context.Context, in core.Interaction, rendered string) (string, error)
}

// TTYPrompter prompts synchronously on an interactive terminal.
type TTYPrompter struct {
	In  io.Reader
	Out io.Writer
}

// NewTTYPrompter prompts on stdin/stdout.
func NewTTYPrompter() *TTYPrompter {
	return &TTYPrompter{In: os.Stdin, Out: os.Stdout}
}

// Prompt implements Prompter. The read cannot be interrupted once started;
// a racing remote answer simply discards the eventual local input.
func (p *TTYPrompter) Prompt(_ context.Context, _ core.Interaction, rendered string) (string, error) {
	fmt.Fprintf(p.Out, "\n%s\n> ", rendered)
	scanner := bufio.NewScanner(p.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
		return "", io.EOF
	}
	return scanner.Text(), nil
}

// FilePrompter handles runs without an interactive terminal: it writes the
// question to a human-editable markdown file and blocks until the operator
// confirms (by sending a line on In) that the file was edited. The file's
// trimmed body becomes the raw answer.
type FilePrompter struct {
	Dir string
	In  io.Reader
	Out io.Writer
}

// NewFilePrompter writes interaction files under dir.
func NewFilePrompter(dir string) *FilePrompter {
	return &FilePrompter{Dir: dir, In: os.Stdin, Out: os.Stdout}
}

// Prompt implements Prompter.
func (p *FilePrompter) Prompt(_ context.Context, in core.Interaction, _ string) (string, error) {
	path, err := interaction.WriteFile(p.Dir, in)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(p.Out, "\nEdit %s with your answer, then press enter.\n", path)

	scanner := bufio.NewScanner(p.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("await confirmation: %w", err)
		}
		return "", io.EOF
	}

	answer, err := interaction.ReadAnswer(path)
	if err != nil {
		return "", err
	}
	if err := interaction.RemoveFile(path); err != nil {
		return "", err
	}
	return answer, nil
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
