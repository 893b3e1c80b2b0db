package ui

// Table Column Titles
const (
	ColName     = "NAME"
	ColHostname = "HOSTNAME"
	ColUser     = "USER"
	ColPort     = "PORT"
	ColForwards = "FORWARDS"
)

// Action Lines / Key Hints
const (
	ActionProfilesNav = "↑/↓: Navigate | enter: Connect | d: Disconnect | n: New | e: Edit | x: Delete | r: Refresh | q: Quit"
	ActionFormNav     = "tab/↑/↓: Next Field | ctrl+f: Add Forward | ctrl+k: Remove Forward | enter: Save | esc: Cancel"
)

// Keyboard shortcuts
const (
	ShortcutExit       = "ctrl+x"
	ShortcutAddForward = "ctrl+f"
)

// Numeric Constants for Layout/Indexing
const (
	MinTableHeight     = 4  // Minimum height for the profile table after calculation
	ProfilesViewOffset = 12 // Non-table lines in the profiles view for height calc
)

// Lipgloss Colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // Cyan for titles
	ColorHelp       = "245" // Grey for help text
	ColorError      = "9"   // Red for errors
	ColorOK         = "10"  // Green for connected/success
	ColorWarn       = "11"  // Yellow for transitional states
)
