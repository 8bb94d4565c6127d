// Package corelog provides the validator's ambient logging convention: a
// stdlib *log.Logger per component, prefixed with the component name, in
// the style "[consensus] 2026/... message".
package corelog

import (
	"log"
	"os"
)

// New returns a logger prefixed with "[component] ".
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
