package config

import (
	"fmt"
	"os"
	"strings"
)

// Exitf reports a fatal startup error on stderr and exits with code 1.
// Commands call it for failures that happen before logging is wired up.
func Exitf(format string, args ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
