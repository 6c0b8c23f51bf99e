// Package fileholders is the File-Handle Inspector (C2): it finds live
// processes holding open file descriptors on the RPM database files and
// terminates them after a recovery or rebuild invalidates their handles —
// the "stuck holder" problem the glossary describes.
package fileholders

import "errors"

// ErrInspectorUnavailable is returned when lsof cannot be invoked at all
// (missing binary, or itself times out). The state machine does not block
// on it: the KILL_HOLDERS step is recorded without a kill result and the
// repair goes ahead.
var ErrInspectorUnavailable = errors.New("fileholders: inspector unavailable")

// Holder identifies a live process with an open handle on a watched path.
type Holder struct {
	PID  int
	Comm string
}
