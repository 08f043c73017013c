package manager

// Outcome is the terminal state of one admission request.
type Outcome int

const (
	NoCredentialFound Outcome = iota
	AlreadyRunning
	Started
	Failed
	DirectoryUnavailable
)

func (o Outcome) String() string {
	switch o {
	case NoCredentialFound:
		return "no_credential"
	case AlreadyRunning:
		return "already_running"
	case Started:
		return "started"
	case Failed:
		return "failed"
	case DirectoryUnavailable:
		return "directory_unavailable"
	}
	return "unknown"
}

// Result is what Admit reports back. Handle is set for Started; Err carries
// the diagnostic cause for Failed and DirectoryUnavailable and is meant for
// logs, not for the requester.
type Result struct {
	Outcome Outcome
	Handle  string
	Err     error
}
