package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding
	Refresh    key.Binding

	// Routes
	GoHome     key.Binding
	GoSchedule key.Binding
	GoStatus   key.Binding
	GoJobs     key.Binding
	GoProblems key.Binding
	GoLogin    key.Binding
	Logout     key.Binding
	ShowLog    key.Binding

	// Lists
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
	Open   key.Binding

	// Actions
	Run     key.Binding
	Pause   key.Binding
	Reload  key.Binding
	Dismiss key.Binding
	Clear   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back to home"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Refresh data"),
		),

		GoHome: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Home"),
		),
		GoSchedule: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Schedule"),
		),
		GoStatus: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Job status"),
		),
		GoJobs: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Runnable jobs"),
		),
		GoProblems: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Problems"),
		),
		GoLogin: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Log in"),
		),
		Logout: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Log out"),
		),
		ShowLog: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Lookout log"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open"),
		),

		Run: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Run job"),
		),
		Pause: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "Pause scheduled job"),
		),
		Reload: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Reload schedules"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Dismiss problem"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Clear problems"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.GoHome, k.GoSchedule, k.GoStatus, k.GoJobs, k.GoProblems, k.ShowLog},
		{k.GoLogin, k.Logout, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom, k.Open},
		{k.Run, k.Pause, k.Reload},
		{k.Dismiss, k.Clear},
		{k.Refresh, k.CycleTheme, k.Help, k.Quit},
	}
}
