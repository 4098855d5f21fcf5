package schema

// DocumentVersion is the format version tag written into document metadata.
const DocumentVersion = "1.0"

// DefaultTitle is used when a document or diagram carries no title.
const DefaultTitle = "Untitled Flowchart"

// Document is the JSON-serializable transport and storage form of a diagram.
// Nodes and Connections are required; a nil slice marks the field as absent.
type Document struct {
	ID          string               `json:"id,omitempty"`
	Title       string               `json:"title"`
	Nodes       []DocumentNode       `json:"nodes"`
	Connections []DocumentConnection `json:"connections"`
	Metadata    *DocumentMetadata    `json:"metadata,omitempty"`
}

// DocumentNode is one node entry of a Document.
type DocumentNode struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
}

// DocumentConnection is one directed connection entry of a Document.
type DocumentConnection struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Label  string `json:"label"`
}

// DocumentMetadata carries timestamps (ISO-8601 strings) and the format version.
type DocumentMetadata struct {
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Position is a top-left canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node footprint.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document node type strings.
const (
	NodeTypeStart       = "start"
	NodeTypeEnd         = "end"
	NodeTypeProcess     = "process"
	NodeTypeDecision    = "decision"
	NodeTypeInputOutput = "input_output"
)
