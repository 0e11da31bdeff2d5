// Package nessietest runs an in-process fake of the Nessie API for tests.
package nessietest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/five82/lookout/internal/nessie"
)

// SessionCookie is the cookie value the fake accepts when RequireSession is on.
const SessionCookie = "fake-session"

// Server is a fake Nessie server. Fields may be changed between requests
// through the setter methods.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	profile        *nessie.Profile
	requireSession bool
	ping           nessie.Ping
	version        nessie.Version
	config         nessie.AppConfig
	jobs           []nessie.RunnableJob
	schedule       []nessie.ScheduledJob
	statuses       []nessie.JobStatus
	failures       map[string]int
	hits           map[string]int
	bodies         map[string][]byte
	gate           chan struct{}
}

// New starts a fake server that is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		ping:    nessie.Ping{App: true, RDS: true, Redshift: true},
		version: nessie.Version{Version: "4.2.0"},
		config: nessie.AppConfig{
			CurrentEnrollmentTerm:   "Fall 2026",
			CurrentEnrollmentTermID: 2268,
			FutureTermID:            2272,
			NessieEnv:               "test",
		},
		failures: map[string]int{},
		hits:     map[string]int{},
		bodies:   map[string][]byte{},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// SetProfile sets the identity returned by /api/user/profile; nil means
// nobody is logged in.
func (s *Server) SetProfile(p *nessie.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// RequireSession makes protected endpoints demand the SessionCookie.
func (s *Server) RequireSession(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireSession = on
}

// SetVersion overrides the /api/version payload.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = nessie.Version{Version: v}
}

// SetRunnableJobs overrides /api/admin/runnable_jobs.
func (s *Server) SetRunnableJobs(jobs []nessie.RunnableJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
}

// SetSchedule overrides /api/schedule.
func (s *Server) SetSchedule(jobs []nessie.ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = jobs
}

// SetJobStatuses overrides /api/admin/background_job_status.
func (s *Server) SetJobStatuses(rows []nessie.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = rows
}

// Fail makes every request to path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// Recover undoes Fail for path.
func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Hold blocks every request until the returned release func is called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// LastBody returns the most recent request body sent to path.
func (s *Server) LastBody(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[path]
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.track)

	r.HandleFunc("/api/ping", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.ping)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/version", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.version)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/config", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.config)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.authenticated(r) {
			writeJSON(w, nil)
			return
		}
		writeJSON(w, s.profile)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/user/cas_login_url", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"casLoginURL": "https://auth.example.edu/cas/login?service=lookout"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/user/cas_logout_url", s.protected(func(w http.ResponseWriter, _ *http.Request) {
		s.profile = nil
		writeJSON(w, map[string]string{"casLogoutURL": "https://auth.example.edu/cas/logout"})
	})).Methods(http.MethodGet)

	r.HandleFunc("/api/admin/runnable_jobs", s.protected(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.jobs)
	})).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/background_job_status", s.protected(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.statuses)
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/job/{jobId}", s.protected(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(mux.Vars(r)["jobId"], "broken") {
			writeJSON(w, map[string]string{"status": "errored"})
			return
		}
		writeJSON(w, map[string]string{"status": "started"})
	})).Methods(http.MethodPost)

	r.HandleFunc("/api/schedule", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.schedule)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/schedule/reload", s.protected(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.schedule)
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/schedule/{jobId}/args", s.protected(func(w http.ResponseWriter, r *http.Request) {
		job, ok := s.findScheduled(mux.Vars(r)["jobId"])
		if !ok {
			http.Error(w, `{"message": "No job found"}`, http.StatusBadRequest)
			return
		}
		var args map[string]any
		_ = json.Unmarshal(s.bodies[r.URL.Path], &args)
		if job.Args == nil {
			job.Args = map[string]any{}
		}
		for k, v := range args {
			job.Args[k] = v
		}
		writeJSON(w, job)
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/schedule/{jobId}", s.protected(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["jobId"]
		job, ok := s.findScheduled(id)
		if !ok {
			http.Error(w, `{"message": "No job found for job id: `+strings.ToUpper(id)+`"}`, http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodDelete {
			removed := job.ID
			kept := s.schedule[:0]
			for _, j := range s.schedule {
				if j.ID != removed {
					kept = append(kept, j)
				}
			}
			s.schedule = kept
			writeJSON(w, s.schedule)
			return
		}
		var trigger map[string]any
		_ = json.Unmarshal(s.bodies[r.URL.Path], &trigger)
		if len(trigger) == 0 {
			job.NextRun = ""
		} else {
			job.Trigger = "cron[custom]"
		}
		writeJSON(w, job)
	})).Methods(http.MethodPost, http.MethodDelete)

	return r
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		gate := s.gate
		s.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		body := readBody(r)
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.bodies[r.URL.Path] = body
		status, failing := s.failures[r.URL.Path]
		s.mu.Unlock()

		if failing {
			http.Error(w, `{"message": "injected failure"}`, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// protected rejects requests without a session and runs h under the lock.
func (s *Server) protected(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.authenticated(r) || s.profile == nil {
			http.Error(w, `{"message": "Invalid credentials."}`, http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticated(r *http.Request) bool {
	if !s.requireSession {
		return true
	}
	cookie, err := r.Cookie("session")
	return err == nil && cookie.Value == SessionCookie
}

func (s *Server) findScheduled(id string) (*nessie.ScheduledJob, bool) {
	for i := range s.schedule {
		if strings.EqualFold(s.schedule[i].ID, id) {
			return &s.schedule[i], true
		}
	}
	return nil, false
}

func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	defer func() { _ = r.Body.Close() }()
	body, _ := io.ReadAll(r.Body)
	return body
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
