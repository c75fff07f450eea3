// Package render turns a report.Report into output for humans or machines:
// an HTML e-mail body, a colored terminal summary, or indented JSON.
package render
