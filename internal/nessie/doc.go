// Package nessie provides an HTTP client for the Nessie job server API.
//
// # Overview
//
// Lookout never talks to Nessie except through this package. The Client
// handles HTTP communication, JSON decoding, the session cookie, and the
// normalization of every failure into an *APIError.
//
// # Client Usage
//
//	client, err := nessie.NewClient("https://nessie.example.edu",
//		nessie.WithSessionCookie(cfg.SessionCookie))
//	if err != nil {
//		return fmt.Errorf("init nessie client: %w", err)
//	}
//
//	profile, err := client.FetchProfile(ctx) // nil profile: not logged in
//
// # API Endpoints
//
// Read-only:
//
//   - GET /api/ping, /api/version, /api/config: server status and environment
//   - GET /api/user/profile: the identity behind the session cookie, or null
//   - GET /api/user/cas_login_url, /api/user/cas_logout_url: CAS redirect targets
//   - GET /api/admin/runnable_jobs: job endpoints the caller may trigger
//   - GET /api/schedule: scheduled jobs
//
// Mutating:
//
//   - POST /api/job/{jobId}: start a job
//   - POST /api/admin/background_job_status: job runs for a day
//   - POST/DELETE /api/schedule/{jobId}, POST /api/schedule/{jobId}/args,
//     POST /api/schedule/reload: schedule edits
//
// # Session Cookie
//
// Nessie authenticates browser users through CAS and a Flask session cookie.
// Lookout cannot complete CAS itself, so the cookie is copied from a browser
// session and handed to WithSessionCookie. It lives in an in-memory cookie
// jar and is never written to disk.
//
// # Error Handling
//
// Every failed request returns an *APIError:
//
//   - Transport failures: Status is zero, Err holds the cause
//   - HTTP errors (status >= 400): Status and Body carry the server response
//   - Decode failures: Status is set, Err holds the decode error
//
// APIError exposes StatusCode() and ResponseText() so the error queue can
// build display entries without importing this package. Hooks registered with
// OnFailure observe every failure; this replaces a global response
// interceptor.
//
// # Testing
//
// The nessietest subpackage serves a fake Nessie API over httptest.
package nessie
