package types

// Event is the wire form of a vault event: a type tag plus string
// attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
