// Package document converts diagrams to and from their transport form.
package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/flowcraft/internal/geometry"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/validation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// timeLayouts are accepted for metadata timestamps. The last two match
// naive ISO-8601 strings written without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ToDocument emits the transport form of d. Nodes and connections keep
// their insertion order.
func ToDocument(d *graph.Diagram) schema.Document {
	doc := schema.Document{
		Title:       d.Title,
		Nodes:       make([]schema.DocumentNode, 0, d.NodeCount()),
		Connections: make([]schema.DocumentConnection, 0, d.ConnectorCount()),
		Metadata: &schema.DocumentMetadata{
			Created:  formatTime(d.Metadata.Created),
			Modified: formatTime(d.Metadata.Modified),
			Version:  d.Metadata.Version,
		},
	}
	for _, n := range d.Nodes() {
		typ := n.Type.String()
		if n.UnknownType != "" {
			typ = n.UnknownType
		}
		doc.Nodes = append(doc.Nodes, schema.DocumentNode{
			ID:       n.ID,
			Type:     typ,
			Text:     n.Label,
			Position: schema.Position{X: n.Position.X, Y: n.Position.Y},
			Size:     schema.Size{Width: n.Size.Width, Height: n.Size.Height},
		})
	}
	for _, c := range d.Connectors() {
		doc.Connections = append(doc.Connections, schema.DocumentConnection{
			ID:     c.ID,
			Source: c.SourceID,
			Target: c.TargetID,
			Type:   string(c.Kind),
			Label:  c.Label,
		})
	}
	return doc
}

// FromDocument rebuilds a diagram. Nodes are created first, then
// connections; a connection whose endpoint is missing is skipped and
// reported as a warning. Structural failures return MALFORMED_DOCUMENT and
// no diagram.
func FromDocument(doc schema.Document, opts ...graph.Option) (*graph.Diagram, []schema.ValidationIssue, error) {
	if doc.Nodes == nil {
		return nil, nil, schema.NewError(schema.ErrCodeMalformedDocument, "document field nodes must be an array")
	}
	if doc.Connections == nil {
		return nil, nil, schema.NewError(schema.ErrCodeMalformedDocument, "document field connections must be an array")
	}

	d := graph.New(doc.Title, opts...)
	var warnings []schema.ValidationIssue

	for i, dn := range doc.Nodes {
		n := graph.Node{
			ID:       dn.ID,
			Label:    dn.Text,
			Position: geometry.Point{X: dn.Position.X, Y: dn.Position.Y},
			Size:     graph.Size{Width: dn.Size.Width, Height: dn.Size.Height},
		}
		n.Type, n.UnknownType = resolveType(dn)
		if n.UnknownType != "" {
			warnings = append(warnings, schema.ValidationIssue{
				Path:     fmt.Sprintf("nodes[%d].type", i),
				Code:     schema.IssueUnknownNodeType,
				Message:  fmt.Sprintf("node %q has unknown type %q, loaded as process", dn.ID, dn.Type),
				Severity: schema.SeverityWarning,
				NodeIDs:  []string{dn.ID},
			})
		}
		if err := d.InsertNode(n); err != nil {
			return nil, nil, schema.NewErrorf(schema.ErrCodeMalformedDocument, "nodes[%d]: %s", i, errMessage(err)).
				WithNode(dn.ID).WithCause(err)
		}
	}

	for i, dc := range doc.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		if _, ok := d.Node(dc.Source); !ok {
			warnings = append(warnings, dangling(path, dc, dc.Source))
			continue
		}
		if _, ok := d.Node(dc.Target); !ok {
			warnings = append(warnings, dangling(path, dc, dc.Target))
			continue
		}

		c := graph.Connector{
			ID:       dc.ID,
			SourceID: dc.Source,
			TargetID: dc.Target,
			Kind:     geometry.Orientation(dc.Type),
			Label:    dc.Label,
		}
		if _, taken := d.Connector(dc.ID); dc.ID == "" || taken {
			created, err := d.AddConnector(dc.Source, dc.Target)
			if err != nil {
				return nil, nil, schema.NewErrorf(schema.ErrCodeMalformedDocument, "%s: %s", path, errMessage(err)).WithCause(err)
			}
			if dc.ID != "" {
				warnings = append(warnings, schema.ValidationIssue{
					Path:         path + ".id",
					Code:         schema.IssueDuplicateConnector,
					Message:      fmt.Sprintf("connection id %q is duplicated, reassigned to %q", dc.ID, created.ID),
					Severity:     schema.SeverityWarning,
					ConnectorIDs: []string{created.ID},
				})
			}
			// Generated connectors carry a fresh kind; keep the stored label.
			if dc.Label != "" {
				if err := d.SetConnectorLabel(created.ID, dc.Label); err != nil {
					return nil, nil, schema.NewErrorf(schema.ErrCodeMalformedDocument, "%s.label: %s", path, errMessage(err)).WithCause(err)
				}
			}
			continue
		}
		if err := d.InsertConnector(c); err != nil {
			return nil, nil, schema.NewErrorf(schema.ErrCodeMalformedDocument, "%s: %s", path, errMessage(err)).WithCause(err)
		}
	}

	applyMetadata(d, doc.Metadata)
	return d, warnings, nil
}

// Parse decodes raw JSON, checks it against the document schema and
// rebuilds the diagram.
func Parse(data []byte, opts ...graph.Option) (*graph.Diagram, []schema.ValidationIssue, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return FromDocument(doc, opts...)
}

// Decode checks raw JSON against the document schema and decodes it without
// building a diagram.
func Decode(data []byte) (schema.Document, error) {
	if err := validation.ValidateDocumentJSON(data); err != nil {
		return schema.Document{}, err
	}
	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return schema.Document{}, schema.NewError(schema.ErrCodeMalformedDocument, "decode document").WithCause(err)
	}
	return doc, nil
}

// Marshal encodes the transport form of d as indented JSON.
func Marshal(d *graph.Diagram) ([]byte, error) {
	data, err := json.MarshalIndent(ToDocument(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// resolveType maps the document type string, falling back to the id prefix
// when the type is absent and to process when it is unrecognized.
func resolveType(dn schema.DocumentNode) (graph.NodeType, string) {
	if dn.Type == "" {
		t, _ := graph.TypeFromID(dn.ID)
		return t, ""
	}
	if t, ok := graph.ParseNodeType(dn.Type); ok {
		return t, ""
	}
	return graph.Process, dn.Type
}

func applyMetadata(d *graph.Diagram, md *schema.DocumentMetadata) {
	if md == nil {
		return
	}
	if ts, ok := parseTime(md.Created); ok {
		d.Metadata.Created = ts
	}
	if ts, ok := parseTime(md.Modified); ok {
		d.Metadata.Modified = ts
	}
	if md.Version != "" {
		d.Metadata.Version = md.Version
	}
}

func dangling(path string, dc schema.DocumentConnection, missing string) schema.ValidationIssue {
	return schema.ValidationIssue{
		Path:         path,
		Code:         schema.IssueDanglingConnection,
		Message:      fmt.Sprintf("connection %q skipped: node %q does not exist", dc.ID, missing),
		Severity:     schema.SeverityWarning,
		NodeIDs:      []string{missing},
		ConnectorIDs: []string{dc.ID},
		Details:      map[string]any{"source": dc.Source, "target": dc.Target},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func errMessage(err error) string {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe.Message
	}
	return err.Error()
}
