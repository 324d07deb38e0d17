package sealink

// ANSI tags for the log category labels.
type color struct {
	boldGreen   string
	boldYellow  string
	boldMagenta string
	boldCyan    string
	boldWhite   string
	reset       string
}

var colors = color{
	boldGreen:   "\033[1;32m",
	boldYellow:  "\033[1;33m",
	boldMagenta: "\033[1;35m",
	boldCyan:    "\033[1;36m",
	boldWhite:   "\033[1;37m",
	reset:       "\033[0m",
}
