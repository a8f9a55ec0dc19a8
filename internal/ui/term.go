package ui

import "golang.org/x/term"

// IsTTY reports whether the given file descriptor refers to a terminal.
// The throughput sparkline is drawn only on terminals.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
