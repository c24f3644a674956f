package fsm

// VariantRequest is the FSM input: one catalog change to apply
type VariantRequest struct {
	Key         string
	Version     string
	URL         string
	Path        string
	IsIDF       bool
	HadExisting bool
}

// VariantResponse is the FSM output (accumulated across transitions)
type VariantResponse struct {
	// From CheckStore
	Skipped bool

	// From Download
	SHA256       string
	DownloadPath string
	DownloadSize int64

	// From Commit/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckStore = "check_store"
	StateDownload   = "download"
	StateCommit     = "commit"
	StateFailed     = "failed"
)

// Status values reported in VariantResponse
const (
	StatusCommitted = "committed"
	StatusCurrent   = "current"
)
