package util

import (
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// LogColor reports whether log output on stdout should be coloured.
func LogColor() bool {
	if runtime.GOOS == "windows" || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}
