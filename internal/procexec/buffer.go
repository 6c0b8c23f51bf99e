package procexec

import (
	"bytes"
	"io"
)

const truncationMarker = "\n...[truncated]"

// drainBounded copies r into memory up to maxBytes, then discards any
// remainder so the pipe never blocks the child process. It never returns
// an error: overflow is reported via the truncated flag, matching the
// supervisor's "truncation, not an error" failure policy.
func drainBounded(r io.Reader, maxBytes int64) (data []byte, truncated bool) {
	var buf bytes.Buffer
	limited := io.LimitReader(r, maxBytes+1)
	io.Copy(&buf, limited) //nolint:errcheck — bytes.Buffer.Write never fails

	if int64(buf.Len()) > maxBytes {
		truncated = true
		data = append([]byte(nil), buf.Bytes()[:maxBytes]...)
		data = append(data, []byte(truncationMarker)...)
		io.Copy(io.Discard, r) //nolint:errcheck — drain remainder to unblock the pipe
		return data, true
	}

	return buf.Bytes(), false
}
