// Package scheduler serializes jobs onto the compiler connection.
//
// Jobs are queued in two FIFO lanes. A single worker goroutine pops the head
// of the priority lane while it is non-empty and the head of the normal lane
// otherwise, resolves the payload, encodes it and waits for the [Sender] to
// accept the bytes before popping again. The worker never waits for the
// compiler's reply, and because it is the only goroutine that sends, at most
// one job is ever in flight from the scheduler.
//
// Every file membership change schedules an "lsp/check" in the normal lane
// unless one is already queued. An explicit check submitted while one is
// queued joins it and returns its id.
//
// An "api/addUri" job without source text has the file read from the
// configured afero.Fs immediately before sending. If the read fails the job
// is dropped and the worker moves on.
package scheduler
