package tui

// Keybinding constants.
const (
	KeyTab   = "tab"
	KeyQuit  = "q"
	KeyCtrlC = "ctrl+c"
	KeyUp    = "up"
	KeyDown  = "down"
	KeyJ     = "j"
	KeyK     = "k"
)

// HelpView returns a one-line help bar with the dashboard's keybindings.
func HelpView() string {
	return StyleHelp.Render("Tab: switch pane | j/k: scroll log | q: quit")
}
