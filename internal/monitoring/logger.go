// Package monitoring routes diagnostic output for the whole module.
package monitoring

import "log"

// Logf is the logging hook every package writes through. It defaults to
// log.Printf; swap it with SetLogger to redirect or silence output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the logging hook. A nil f mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
