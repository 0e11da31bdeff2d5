package nessie

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Ping mirrors the payload returned by /api/ping.
type Ping struct {
	App      bool `json:"app"`
	RDS      bool `json:"rds"`
	Redshift bool `json:"redshift"`
}

// Healthy reports whether every backing store answered.
func (p Ping) Healthy() bool {
	return p.App && p.RDS && p.Redshift
}

// Version mirrors /api/version. Build is null when the server has no
// build summary.
type Version struct {
	Version string          `json:"version"`
	Build   json.RawMessage `json:"build,omitempty"`
}

// Semver parses the reported version.
func (v Version) Semver() (*semver.Version, error) {
	parsed, err := semver.NewVersion(strings.TrimSpace(v.Version))
	if err != nil {
		return nil, fmt.Errorf("parse server version %q: %w", v.Version, err)
	}
	return parsed, nil
}

// AppConfig mirrors /api/config.
type AppConfig struct {
	CurrentEnrollmentTerm         string `json:"currentEnrollmentTerm"`
	CurrentEnrollmentTermID       int    `json:"currentEnrollmentTermId"`
	EBEnvironment                 string `json:"ebEnvironment"`
	FeatureFlagEnterpriseDataLake bool   `json:"featureFlagEnterpriseDataLake"`
	FutureTermID                  int    `json:"futureTermId"`
	NessieEnv                     string `json:"nessieEnv"`
}

// Profile is the authenticated identity returned by /api/user/profile.
type Profile struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

// DisplayName prefers the human name and falls back to the UID.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.UID
}

// RunnableJob describes a job endpoint advertised by /api/admin/runnable_jobs.
type RunnableJob struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Required []string `json:"required"`
	Methods  []string `json:"methods"`
}

// NeedsArguments reports whether the path contains URL parameters that must
// be filled in before the job can be run.
func (j RunnableJob) NeedsArguments() bool {
	return len(j.Required) > 0
}

// JobResult is the response to a job trigger.
type JobResult struct {
	Status string `json:"status"`
}

// Started reports whether the server accepted the job.
func (r JobResult) Started() bool {
	return r.Status == "started"
}

// JobStatus mirrors a row from /api/admin/background_job_status.
type JobStatus struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	InstanceID string `json:"instanceId"`
	Details    string `json:"details"`
	Started    string `json:"started"`
	Finished   string `json:"finished"`
}

// ParsedStarted returns the start timestamp as time.Time when possible.
func (s JobStatus) ParsedStarted() time.Time {
	return parseTime(s.Started)
}

// ParsedFinished returns the finish timestamp; zero while still running.
func (s JobStatus) ParsedFinished() time.Time {
	return parseTime(s.Finished)
}

// Duration returns the run time, or the elapsed time relative to now for
// runs that have not finished.
func (s JobStatus) Duration(now time.Time) time.Duration {
	start := s.ParsedStarted()
	if start.IsZero() {
		return 0
	}
	end := s.ParsedFinished()
	if end.IsZero() {
		end = now
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// ScheduledJob mirrors an entry from /api/schedule.
type ScheduledJob struct {
	ID         string         `json:"id"`
	Components []string       `json:"components"`
	Trigger    string         `json:"trigger"`
	NextRun    string         `json:"nextRun"`
	Locked     bool           `json:"locked"`
	Args       map[string]any `json:"args,omitempty"`
}

// Paused reports whether the scheduler has no next run for the job.
func (j ScheduledJob) Paused() bool {
	return strings.TrimSpace(j.NextRun) == "" || j.NextRun == "None"
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
