package dispatch

import "fmt"

// Summary is returned by every scheduler entry point.
type Summary struct {
	Job       string   `json:"job"`
	Gateway   string   `json:"gateway,omitempty"`
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// NewSummary starts an empty summary for a job.
func NewSummary(job string) Summary {
	return Summary{Job: job, Errors: []string{}}
}

// AddError records a per-item error without failing the run.
func (s *Summary) AddError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}
