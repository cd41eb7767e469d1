package audit

import (
	"os"
	"path/filepath"
	"time"

	"github.com/marcelocantos/subby/pipeline"
)

// Entry is a single audit log record describing one pipeline run.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"ts"`
	PrevHash   string    `json:"prev_hash"`
	ID         string    `json:"id,omitempty"`    // pipeline ID; empty if launch failed
	Source     string    `json:"source"`          // cli, mcp or script
	Pipeline   string    `json:"pipeline"`        // rendered command line
	Programs   []string  `json:"programs"`        // program of each stage
	ExitCodes  []int     `json:"exit_codes"`      // per stage; -N for signal N
	ReturnCode int       `json:"return_code"`     // first disallowed code, else last
	State      string    `json:"state"`           // done, killed or running
	Error      string    `json:"error,omitempty"` // error message if failed
	Duration   float64   `json:"duration_ms"`     // wall time in milliseconds
	Cwd        string    `json:"cwd"`             // working directory
	Hash       string    `json:"hash"`            // SHA-256 of this entry (with hash field empty)
}

// Record is the caller-supplied part of an Entry.
type Record struct {
	ID         string
	Source     string
	Pipeline   string
	Programs   []string
	ExitCodes  []int
	ReturnCode int
	State      string
	Error      string
	Duration   time.Duration
	Cwd        string
}

// RecordOf describes a pipeline run. p is nil when the launch failed; the
// caller's text then stands in for the rendered command line.
func RecordOf(source, pipelineText string, p *pipeline.Processes, runErr error, elapsed time.Duration) Record {
	r := Record{
		Source:   source,
		Pipeline: pipelineText,
		Duration: elapsed,
	}
	r.Cwd, _ = os.Getwd()
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if p == nil {
		r.ReturnCode = -1
		return r
	}
	r.ID = p.ID()
	r.Pipeline = p.String()
	r.State = p.Poll().String()
	for _, s := range p.Stages() {
		r.Programs = append(r.Programs, filepath.Base(s.Argv[0]))
	}
	if codes, ok := p.ExitCodes(); ok {
		r.ExitCodes = codes
		r.ReturnCode, _ = p.ReturnCode()
	}
	return r
}
