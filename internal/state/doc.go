// Package state holds the data the background poller fetches for the UI.
//
// # Overview
//
// Store is a small readers-writer guarded container for the latest scheduled
// jobs and today's background job status rows. The poller writes it; the TUI
// reads it on every tick.
//
// # Update Semantics
//
//	// Success: replace the data, clear the error, reset the failure count
//	store.Update(schedule, statuses, nil)
//
//	// Failure: keep the old data, record the error, count the failure
//	store.Update(nil, nil, err)
//
// The UI therefore always shows the most recent successful poll, and
// Snapshot.IsOffline turns true after two consecutive failures.
//
// # Copies
//
// Update and Snapshot copy slices and wrap the error so callers never share
// backing arrays with the store.
//
// # Logout
//
// Reset clears everything. The app calls it when the session ends so data
// fetched for one user is not rendered for the next.
package state
