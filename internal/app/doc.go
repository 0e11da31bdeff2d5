// Package app is the composition root for Lookout.
//
// # Overview
//
// Build wires the Nessie client, the shared AppContext, the route table and
// guard, and the polling store from a loaded config.Config. Both front ends
// use it: the TUI through Run, the cobra commands through the Runtime it
// returns.
//
// # Components
//
//   - app.go: Runtime, Build, Logout and the TUI entry point Run
//   - poller.go: background refresh of the schedule and today's job status
//
// # Data Flow
//
//	┌──────────────┐
//	│   Build()    │
//	└──────┬───────┘
//	       │
//	       ├─────> nessie.NewClient()   HTTP client with the session cookie
//	       ├─────> appctx.New()         config cache, session, error queue
//	       ├─────> guard.NewTable()     landing and default routes
//	       └─────> guard.NewNavigator() every navigation goes through here
//
//	Background Poller Loop:
//	┌─────────────────────────────────────────┐
//	│ StartPoller() goroutine                 │
//	│  ├─> authenticated()? else sleep        │
//	│  ├─> FetchSchedule()                    │
//	│  ├─> FetchJobStatus()                   │
//	│  └─> store.Update()                     │
//	│      └─> UI reads store.Snapshot()      │
//	└─────────────────────────────────────────┘
//
// # Polling Behavior
//
// The poller only calls protected endpoints while a session is registered.
// Consecutive failures double the wait up to 30 seconds; one success resets
// it. When the session ends the store is reset so the next user never sees
// the previous user's data.
//
// # Error Handling
//
// Build fails for an unusable base URL or an invalid route table. Everything
// after that is recoverable: gateway failures land in the error queue and
// the poll loop keeps going.
package app
