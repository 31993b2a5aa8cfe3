package models

import "time"

// JobRequest describes one correlation run. Zero fields fall back to configuration.
type JobRequest struct {
	PrimarySymbols    []string `json:"primary_symbols" validate:"required,min=1,dive,required"`
	PrimaryKind       string   `json:"primary_kind" default:"security" validate:"oneof=security fred_series"`
	CandidateSymbols  []string `json:"candidate_symbols" validate:"omitempty,dive,required"`
	EndDate           string   `json:"end_date"`
	Source            string   `json:"source"`
	ForceDownload     bool     `json:"force_download"`
	UseAlternateStore bool     `json:"use_alternate_store"`
	Parallel          bool     `json:"parallel"`
	TopN              int      `json:"top_n" validate:"gte=0,lte=500"`
	Windows           []string `json:"windows"`
	RankWindows       []string `json:"rank_windows"`
}

// JobResult summarises a finished run.
type JobResult struct {
	RunID          string        `json:"run_id"`
	Primaries      int           `json:"primaries"`
	Candidates     int           `json:"candidates"`
	Correlations   int           `json:"correlations"`
	RankedRows     int           `json:"ranked_rows"`
	Windows        []string      `json:"windows"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	SkippedSeeding []string      `json:"skipped_seeding,omitempty"`
}

// JobStatus is the background queue's view of a submitted job.
type JobStatus struct {
	JobID     string    `json:"job_id"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
