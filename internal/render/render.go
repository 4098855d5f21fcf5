package render

import (
	"context"
	"strings"

	"github.com/rendis/flowcraft/pkg/schema"
)

// Formats lists the accepted export formats.
var Formats = []string{"mermaid", "text", "png", "svg"}

// Output is a rendered export with its media type.
type Output struct {
	Format      string
	ContentType string
	Body        []byte
}

// Render dispatches a Model to the renderer for format. An empty format
// selects Mermaid.
func Render(ctx context.Context, model *Model, format string) (*Output, error) {
	switch strings.ToLower(format) {
	case "", "mermaid":
		return &Output{Format: "mermaid", ContentType: "text/plain; charset=utf-8", Body: []byte(RenderMermaid(model))}, nil
	case "text", "ascii":
		return &Output{Format: "text", ContentType: "text/plain; charset=utf-8", Body: []byte(RenderText(model))}, nil
	case "png":
		b, err := RenderImage(ctx, model, FormatPNG)
		if err != nil {
			return nil, err
		}
		return &Output{Format: "png", ContentType: "image/png", Body: b}, nil
	case "svg":
		b, err := RenderImage(ctx, model, FormatSVG)
		if err != nil {
			return nil, err
		}
		return &Output{Format: "svg", ContentType: "image/svg+xml", Body: b}, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported format %q", format).
			WithDetails(map[string]any{"formats": Formats})
	}
}
