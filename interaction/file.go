package interaction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

const fileHeaderClose = "-->"

// WriteFile writes the human-editable interaction file under dir. The file
// carries the rendered prompt inside an HTML-comment instruction header;
// whatever the operator writes below the header becomes the raw answer.
func WriteFile(dir string, in core.Interaction) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create interactions directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!--\n")
	b.WriteString("Answer the question below by writing your response after the closing\n")
	b.WriteString("comment marker, then confirm completion in the terminal.\n\n")
	b.WriteString(RenderPrompt(in))
	b.WriteString("\n-->\n\n")

	path := filepath.Join(dir, in.Base().Slug+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write interaction file: %w", err)
	}
	return path, nil
}

// ReadAnswer reads the interaction file and returns its trimmed body with
// the instruction header stripped.
func ReadAnswer(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read interaction file: %w", err)
	}
	body := string(raw)
	if idx := strings.Index(body, fileHeaderClose); idx >= 0 {
		body = body[idx+len(fileHeaderClose):]
	}
	return strings.TrimSpace(body), nil
}

// RemoveFile deletes an answered interaction file. A missing file is not an
// error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove interaction file: %w", err)
	}
	return nil
}
