package parser

// EventKind identifies which variant an Event carries.
type EventKind int

const (
	EventContent EventKind = iota
	EventToolStart
	EventToolInput
	EventToolStop
	EventContextUsage
	EventUsage
	EventEnd
)

// Event is the tagged union of the parser's output; only the fields
// relevant to Kind are meaningful.
type Event struct {
	Kind EventKind

	Text string // Content.text, ToolInput.text

	ToolID   string // ToolStart.id, ToolInput.id, ToolStop.id
	ToolName string // ToolStart.name

	ContextUsagePercent float64 // ContextUsage.percent
	Credits             float64 // Usage.credits
}
