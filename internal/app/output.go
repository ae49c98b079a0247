package app

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ColorEnabled resolves a color mode against the output file. "auto" enables
// color only on a terminal and honors NO_COLOR.
func ColorEnabled(mode string, out *os.File) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "", "auto":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		return term.IsTerminal(int(out.Fd())), nil
	default:
		return false, fmt.Errorf("unknown color mode: %s", mode)
	}
}
