package pipeline

import "time"

// FileStatus is the outcome for one source file.
type FileStatus string

const (
	StatusCompiled  FileStatus = "compiled"
	StatusUnchanged FileStatus = "unchanged"
	StatusFailed    FileStatus = "failed"
)

// FileResult records what happened to one source file.
type FileResult struct {
	Source string
	Output string
	Status FileStatus
	// Hash is the sha256 of the written CSS, empty for failures.
	Hash string
	Err  error
}

// Result summarises one Build of a group.
type Result struct {
	Task     string
	Files    []FileResult
	Duration time.Duration
}

// Count returns how many files ended with the given status.
func (r *Result) Count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the files that did not compile.
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Status == StatusFailed {
			out = append(out, f)
		}
	}
	return out
}

// Outputs returns the written or already up-to-date output paths.
func (r *Result) Outputs() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status != StatusFailed {
			out = append(out, f.Output)
		}
	}
	return out
}
