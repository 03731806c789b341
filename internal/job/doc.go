// Package job defines the unit of work sent to the compiler and the registry
// that assigns correlation ids.
//
// A [Job] carries a [Kind] (the wire "request" tag), an opaque JSON payload
// and an id assigned by [Registry.Register]. The kind determines the [Lane]:
// file membership changes go to the priority lane, everything else to the
// normal lane.
//
// Ids are decimal renderings of a strictly increasing counter and are never
// reused by a registry. A registry belongs to exactly one session and is
// discarded with it.
package job
