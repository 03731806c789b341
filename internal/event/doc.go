// Package event provides a pub-sub event bus for decoupled communication
// between the bridge components and the CLI.
//
// The scheduler, transport, session and watcher publish events; the CLI and
// tests subscribe to them. Publishers never know who listens.
//
// # Main Types
//
//   - [Event]: interface providing EventType() and Timestamp()
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: function type for event handlers (func(Event))
//
// # Event Categories
//
// Job events:
//   - [JobEnqueuedEvent], [JobSentEvent], [JobDeliveryFailedEvent],
//     [JobDroppedEvent], [JobResolvedEvent]
//
// Transport events:
//   - [TransportOpenedEvent], [TransportClosedEvent]
//
// Session events:
//   - [SessionReadyEvent], [SessionCrashedEvent], [SessionStoppedEvent],
//     [SessionRestartingEvent]
//
// Workspace events:
//   - [WorkspaceChangedEvent]
//
// # Thread Safety
//
// Handlers are called synchronously on the publisher's goroutine and are
// protected against panics. A handler must not block: the scheduler publishes
// from its worker goroutine.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeSessionReady, func(e event.Event) {
//	    ready := e.(event.SessionReadyEvent)
//	    fmt.Println("compiler listening on", ready.Address)
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("event", "type", e.EventType())
//	})
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - job.enqueued, job.sent, job.delivery_failed, job.dropped, job.resolved
//   - transport.opened, transport.closed
//   - session.ready, session.crashed, session.stopped, session.restarting
//   - workspace.changed
package event
