package models

import (
	"fmt"
	"strings"
)

// MItemFailure records why one item of a batch was skipped.
type MItemFailure struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// MBatchReport collects per-item outcomes of one worker run.
type MBatchReport struct {
	Job       string         `json:"job"`
	Succeeded []string       `json:"succeeded"`
	Failed    []MItemFailure `json:"failed"`
	Skipped   bool           `json:"skipped"`
	Reason    string         `json:"reason,omitempty"`
}

func NewBatchReport(job string) *MBatchReport {
	return &MBatchReport{Job: job}
}

func (r *MBatchReport) Ok(item string) {
	r.Succeeded = append(r.Succeeded, item)
}

func (r *MBatchReport) Fail(item string, err error) {
	r.Failed = append(r.Failed, MItemFailure{Item: item, Reason: err.Error()})
}

// Skip marks the whole run as a no-op.
func (r *MBatchReport) Skip(reason string) {
	r.Skipped = true
	r.Reason = reason
}

func (r *MBatchReport) String() string {
	if r.Skipped {
		return fmt.Sprintf("%s: skipped (%s)", r.Job, r.Reason)
	}
	s := fmt.Sprintf("%s: %d ok, %d failed", r.Job, len(r.Succeeded), len(r.Failed))
	if len(r.Failed) > 0 {
		parts := make([]string, 0, len(r.Failed))
		for _, f := range r.Failed {
			parts = append(parts, f.Item+": "+f.Reason)
		}
		s += " [" + strings.Join(parts, "; ") + "]"
	}
	return s
}
