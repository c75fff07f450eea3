// lookerhealth evaluates the health and usage of monitored Looker dashboards
// and looks and delivers a report.
//
// Usage:
//
//	lookerhealth run   [--config=<path>] [--output=text|json|html] [--dry-run]
//	lookerhealth serve [--config=<path>]
//	lookerhealth version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
