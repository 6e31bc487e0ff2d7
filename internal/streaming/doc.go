/*
Package streaming provides timeout-protected delivery of large HTTP
response bodies.

Slow or vanished clients are the main hazard when streaming video: an
unbounded io.Copy into a stalled connection pins a handler goroutine and
an open file for as long as the peer keeps the socket alive. Writer
bounds every write with a timeout, watches for idle gaps between writes,
and splits large writes into chunks so cancellation is noticed promptly.

Typical use:

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	_, err = streaming.Copy(r.Context(), w, f, streaming.DefaultConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("stream failed: %v", err)
	}

ErrClientGone is reported when the request context is canceled and is
normally not worth logging as an error; the client simply left.
*/
package streaming
