package platform

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Window contains identity metadata for a top-level window.
type Window struct {
	ID       WindowID
	PID      int
	AppID    string // WM_CLASS class, e.g. "Alacritty"
	Instance string // WM_CLASS instance, e.g. "Alacritty" or a spawn marker
	Title    string
}

// Backend abstracts window-system queries across platforms.
type Backend interface {
	// ListWindows returns normal top-level windows on every desktop.
	ListWindows() ([]Window, error)
	Disconnect()
}
