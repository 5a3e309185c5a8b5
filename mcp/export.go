package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
)

const (
	exportFormatRelaxed   = "relaxed"
	exportFormatCanonical = "canonical"
)

var exportFormats = []string{exportFormatRelaxed, exportFormatCanonical}

// sanitizeExportTitle keeps letters, digits, '-' and '_'; everything else
// becomes '_' so the title is safe as a filename component.
func sanitizeExportTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "export"
	}
	return out
}

func exportFilename(title string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", sanitizeExportTitle(title), now.Format("20060102_150405"), xid.New().String())
}

// writeExportFile writes the bounded result set as one extended-JSON
// document per line and returns the absolute file path.
func writeExportFile(dir, title string, documents []json.RawMessage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, exportFilename(title, time.Now()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()
	for _, doc := range documents {
		if _, err := file.Write(doc); err != nil {
			return "", fmt.Errorf("write export file: %w", err)
		}
		if _, err := file.Write([]byte("\n")); err != nil {
			return "", fmt.Errorf("write export file: %w", err)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
