// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"io"
)

// Version is the pgsentry release version.
const Version = "0.3.0"

const art = `
                                _
  _ __   __ _ ___  ___ _ __ | |_ _ __ _   _
 | '_ \ / _` + "`" + ` / __|/ _ \ '_ \| __| '__| | | |
 | |_) | (_| \__ \  __/ | | | |_| |  | |_| |
 | .__/ \__, |___/\___|_| |_|\__|_|   \__, |
 |_|    |___/  v%s - Postgres Sentry  |___/
`

// Print writes the banner to w.
func Print(w io.Writer) {
	fmt.Fprintf(w, art, Version)
	fmt.Fprintln(w, "------------------------------------------------")
}
