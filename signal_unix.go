//go:build linux || darwin

package fiberrt

import (
	"os/signal"
	"syscall"
)

// ignoreSIGPIPE is called once from New (spec §6 "SIGPIPE is ignored
// during init"), matching original_source/io.c's _st_io_init.
func ignoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}
