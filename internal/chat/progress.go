package chat

import "io"

// CopyWithProgress copies src to dst and calls fn after every chunk with the
// running byte count. fn may be nil.
func CopyWithProgress(dst io.Writer, src io.Reader, total int64, fn ProgressFunc) (int64, error) {
	return io.Copy(dst, io.TeeReader(src, &progressWriter{total: total, fn: fn}))
}

type progressWriter struct {
	received int64
	total    int64
	fn       ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.received += int64(len(p))
	if w.fn != nil {
		w.fn(w.received, w.total)
	}
	return len(p), nil
}
