package display

import (
	"fmt"
	"os"

	"github.com/casemill/casemill/internal/logging"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner() {
	if logging.Magenta != "" {
		fmt.Fprint(os.Stdout, "\033[1;95m")
	}
	fmt.Fprint(os.Stdout, `  ____                __  __ _ _ _
 / ___|__ _ ___  ___ |  \/  (_) | |
| |   / _` + "`" + ` / __|/ _ \| |\/| | | | |
| |__| (_| \__ \  __/| |  | | | | |
 \____\__,_|___/\___||_|  |_|_|_|_|
`)
	if logging.Magenta != "" {
		fmt.Fprintln(os.Stdout, logging.NC)
	}
}
