package dump

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

var restrictedOnce sync.Once

func warnRestrictedOnce() {
	restrictedOnce.Do(func() {
		advise("debuglater: using restricted codec, only built-in value kinds are preserved faithfully; " +
			"register types with snapshot.RegisterType for full fidelity")
	})
}

// advise prints a reduced-fidelity advisory to stderr, in red when stderr
// is a terminal.
func advise(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", ansiRed, msg, ansiReset)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
