// Command voxenctl bundles the operational tasks of the API: schema
// migrations, the daily due-date reminders and administrator bootstrap.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newCommandLine()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
