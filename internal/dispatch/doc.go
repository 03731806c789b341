// Package dispatch correlates compiler replies with the callers waiting on them.
//
// A [Dispatcher] holds at most one [Callback] per job id. When a reply arrives,
// the callback is removed from the table before it is invoked, so it runs at
// most once even if the compiler answers the same id twice. Replies for ids
// with no callback (notifications, late replies after Unregister, duplicates)
// are logged at debug level and discarded.
//
// [Dispatcher.Await] adapts the callback table to a one-shot channel of
// [Result], and [Dispatcher.RejectAll] fails every pending callback when a
// session is torn down.
package dispatch
