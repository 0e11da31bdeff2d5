// Package logtail reads the end of Lookout's own log file.
//
// Read keeps a ring buffer of the last N lines, so memory stays bounded by N
// rather than by the size of the file. Tail does the same for parsed lines
// and can narrow them to one navigation, which makes it easy to follow a
// single guard decision through the log:
//
//	lines, err := logtail.Tail(cfg.LogFile, 200, logtail.Filter{Nav: id})
//
// Parse understands both formats the slog handlers write (text key=value
// pairs and JSON objects). It reads the time, level and msg keys plus the nav
// and target attributes that every navigation attaches to its context.
package logtail
