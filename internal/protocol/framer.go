package protocol

import "bytes"

// delimiterBytes avoids re-allocating the delimiter on every scan.
var delimiterBytes = []byte(Delimiter)

// NextFrame scans buf for the first occurrence of the delimiter and returns
// the message bytes preceding it (delimiter excluded) and the number of
// bytes consumed from buf (delimiter included). ok is false when buf does
// not yet contain a complete message.
//
// Callers must advance their read cursor by consumed and retain the
// remainder for the next read; re-scanning an unconsumed buffer would
// dispatch the same message again.
func NextFrame(buf []byte) (message []byte, consumed int, ok bool) {
	idx := bytes.Index(buf, delimiterBytes)
	if idx < 0 {
		return nil, 0, false
	}
	return buf[:idx], idx + len(delimiterBytes), true
}
