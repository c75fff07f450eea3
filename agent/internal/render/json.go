package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

// JSON writes the report as indented JSON.
type JSON struct{}

// NewJSON returns a JSON renderer.
func NewJSON() *JSON { return &JSON{} }

func (JSON) Render(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("render: encode json: %w", err)
	}
	return nil
}
