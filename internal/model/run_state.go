package model

import (
	"maps"
	"time"
)

// RunState holds the counters of a run. Each target pipeline receives a copy and returns
// an updated copy, and the caller merges the copies. Nothing here is shared between
// goroutines.
type RunState struct {
	Targets     int            `json:"targets"`
	Records     int            `json:"records"`
	Attempts    int            `json:"attempts"`
	Escalations int            `json:"escalations"`
	ByStatus    map[Status]int `json:"by_status"`
	ByMethod    map[Method]int `json:"by_method"` // successful acquisitions
	ByFirm      map[string]int `json:"by_firm"`
}

func NewRunState() RunState {
	return RunState{
		ByStatus: make(map[Status]int),
		ByMethod: make(map[Method]int),
		ByFirm:   make(map[string]int),
	}
}

func (s RunState) clone() RunState {
	c := s
	c.ByStatus = maps.Clone(s.ByStatus)
	c.ByMethod = maps.Clone(s.ByMethod)
	c.ByFirm = maps.Clone(s.ByFirm)
	if c.ByStatus == nil {
		c.ByStatus = make(map[Status]int)
	}
	if c.ByMethod == nil {
		c.ByMethod = make(map[Method]int)
	}
	if c.ByFirm == nil {
		c.ByFirm = make(map[string]int)
	}
	return c
}

// WithAttempt counts one acquisition attempt. escalated is true when the chain moved on.
func (s RunState) WithAttempt(a AcquisitionAttempt, escalated bool) RunState {
	c := s.clone()
	c.Attempts++
	if a.Success {
		c.ByMethod[a.Method]++
	}
	if escalated {
		c.Escalations++
	}
	return c
}

// WithRecords counts the records of one finished target.
func (s RunState) WithRecords(records []Record) RunState {
	c := s.clone()
	c.Targets++
	for _, r := range records {
		c.Records++
		c.ByStatus[r.Status]++
		c.ByFirm[r.FirmName]++
	}
	return c
}

func (s RunState) Merge(o RunState) RunState {
	c := s.clone()
	c.Targets += o.Targets
	c.Records += o.Records
	c.Attempts += o.Attempts
	c.Escalations += o.Escalations
	for k, v := range o.ByStatus {
		c.ByStatus[k] += v
	}
	for k, v := range o.ByMethod {
		c.ByMethod[k] += v
	}
	for k, v := range o.ByFirm {
		c.ByFirm[k] += v
	}
	return c
}

// Summary is the run level output handed to exporters together with the records.
type Summary struct {
	RunState
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Fatal      string        `json:"fatal,omitempty"`
}
