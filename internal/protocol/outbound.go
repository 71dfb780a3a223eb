package protocol

// AttachedFile is a pasted file sent alongside a turn. The backend writes it
// into the project workspace before the agent runs.
type AttachedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// TurnRequest is the outbound payload that starts a new agent turn.
type TurnRequest struct {
	Message       string         `json:"message"`
	Images        []string       `json:"images,omitempty"`
	AttachedFiles []AttachedFile `json:"attached_files,omitempty"`
}

// StopRequest asks the backend to interrupt the running agent task.
type StopRequest struct {
	Type string `json:"type"`
}

// NewStopRequest returns the stop directive.
func NewStopRequest() StopRequest {
	return StopRequest{Type: "stop"}
}
