package output

// TaskInfo describes one task in `list` JSON output.
type TaskInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Src         string   `json:"src,omitempty"`
	Dest        string   `json:"dest,omitempty"`
	Depends     []string `json:"depends,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Default     bool     `json:"default,omitempty"`
}

// ListOutput is the JSON document printed by `list`.
type ListOutput struct {
	Tasks []TaskInfo `json:"tasks"`
}

// PlanOutput is the JSON document printed by `run --dry-run`.
type PlanOutput struct {
	Tasks  []string   `json:"tasks"`
	Levels [][]string `json:"levels"`
}

// FileInfo is one compiled stylesheet.
type FileInfo struct {
	Task   string `json:"task"`
	Source string `json:"source"`
	Output string `json:"output,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunSummary counts files by outcome.
type RunSummary struct {
	Compiled  int   `json:"compiled"`
	Unchanged int   `json:"unchanged"`
	Failed    int   `json:"failed"`
	TotalMS   int64 `json:"total_ms"`
}

// RunOutput is the JSON document printed after a build.
type RunOutput struct {
	RunID   string     `json:"run_id,omitempty"`
	Tasks   []string   `json:"tasks"`
	Status  string     `json:"status"`
	Files   []FileInfo `json:"files"`
	Summary RunSummary `json:"summary"`
	Error   string     `json:"error,omitempty"`
}

// HistoryEntry is one run in `history` JSON output.
type HistoryEntry struct {
	ID          string   `json:"id"`
	Tasks       []string `json:"tasks"`
	Status      string   `json:"status"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
	Compiled    int      `json:"compiled"`
	Unchanged   int      `json:"unchanged"`
	Failed      int      `json:"failed"`
	Error       string   `json:"error,omitempty"`
}
