// Package ui implements the Lookout terminal interface on Bubble Tea.
//
// Every view change is a guarded navigation: key presses call the
// guard.Navigator in a command and the resulting decision decides which
// route is shown. Views read the session, the error queue and the polled
// store through snapshots taken on each tick, so rendering never blocks on
// the network.
//
// Problems are an overlay rather than a route. Navigating clears the error
// queue, so the overlay is how reported failures stay visible until they are
// dismissed.
package ui
