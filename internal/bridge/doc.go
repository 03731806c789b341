// Package bridge is the caller-facing surface of flixbridge.
//
// A Bridge keeps exactly one compiler [session.Session] alive. Callers submit
// jobs with [Bridge.Enqueue] and later collect the reply with
// [Bridge.AwaitResult], or fire and forget with [Bridge.Notify]. Each
// enqueued id resolves at most once: with the compiler's reply, or with an
// error when the session carrying it is torn down.
//
// When a running session crashes the bridge's supervisor stops it and starts
// a replacement after an exponential backoff. Restarts are bounded; a session
// that stays up for the reset window earns a fresh budget. Job ids keep
// increasing across restarts so a late reply can never match a new job.
//
// Lifecycle:
//
//	b := bridge.New(cfg, bridge.WithLogger(logger), bridge.WithEventBus(bus))
//	b.Start(ctx, session.StartOptions{StoragePath: dir, WorkspaceFiles: files})
//	res, err := b.Request(ctx, job.KindCheck, nil)
//	b.Stop()
package bridge
