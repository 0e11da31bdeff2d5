// Package config loads the Lookout configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/lookout/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// Flags and LOOKOUT_* environment variables are layered on afterwards by the
// cli package through Config.Apply.
//
// # Default Values
//
//   - Config file: ~/.config/lookout/config.toml
//   - Nessie base URL: http://127.0.0.1:5000
//   - Landing route: /login
//   - Default route: /home
//   - Poll interval: 10 seconds
//   - Request timeout: 10 seconds
//   - Log file: ~/.local/state/lookout/lookout.log
//   - Log level: info
//
// # TOML Format
//
//	base_url = "https://nessie.example.edu"
//	session_cookie = "session=3f9c..."
//	landing_route = "/login"
//	default_route = "/home"
//	poll_seconds = 10
//	request_timeout_seconds = 10
//	log_file = "~/.local/state/lookout/lookout.log"
//	log_level = "info"
//	min_server_version = "4.0.0"
//
// Every field is optional. session_cookie holds the cookie the Nessie server
// set after a CAS login, either as name=value pairs or as a bare value for the
// default cookie name. Tilde expansion is applied to log_file.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than
// os.ErrNotExist, and TOML parse errors. A missing file is not an error.
package config
