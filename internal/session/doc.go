// Package session runs one lifetime of the compiler: its process, the
// WebSocket transport to it, and the per-session job registry, dispatcher
// and scheduler.
//
// [Session.Start] launches the compiler, waits until it prints its ws://
// endpoint, opens the transport, publishes session.ready and queues every
// workspace file. An unexpected exit, a dropped connection or a stderr line
// matching the crash pattern publishes session.crashed and calls the crash
// handler once. The session never restarts itself; the owner decides.
//
// [Session.Stop] tears everything down: the scheduler stops, pending
// callbacks are rejected with errors.ErrSessionClosed, the transport closes
// and the process is killed and reaped. A session is single use. Start and
// Stop must not run concurrently.
//
// A lock file in the storage directory keeps a second session from running a
// compiler against the same storage while the first is alive.
package session
