// Package transport owns the single WebSocket connection to the compiler.
//
// A [Transport] moves through three states: Closed, Opening and Open.
// [Transport.Open] dials the compiler endpoint and starts a read loop that
// decodes every inbound text frame and hands it to the configured
// [MessageHandler]. Frames that fail to decode are logged and dropped.
//
// [Transport.Send] writes immediately when the socket is open. Otherwise it
// waits a fixed retry interval on the injected [Clock] and checks again, up
// to a bounded number of retries, before failing with
// errors.ErrTransportNotReady.
//
// [Transport.Close] is idempotent and always leaves the transport Closed.
package transport
