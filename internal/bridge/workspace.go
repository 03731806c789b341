package bridge

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
	"github.com/Iron-Ham/flixbridge/internal/session"
)

// fileSet is the compiler's current file membership as the bridge has
// requested it: the files of the last Start plus every add and remove job
// submitted since. A replacement session is started from it.
type fileSet map[string]struct{}

func newFileSet(files []string) fileSet {
	fs := make(fileSet, len(files))
	for _, f := range files {
		if _, _, ok := job.FileKinds(f); ok {
			fs[session.FileURI(f)] = struct{}{}
		}
	}
	return fs
}

// apply records a file membership job. Other kinds are ignored.
func (fs fileSet) apply(kind job.Kind, payload json.RawMessage) {
	if !kind.ChangesFileSet() {
		return
	}
	uri := protocol.PayloadURI(payload)
	if uri == "" {
		return
	}
	uri = session.FileURI(uri)
	if kind.AddsFile() {
		fs[uri] = struct{}{}
	} else {
		delete(fs, uri)
	}
}

// list returns the member URIs in sorted order.
func (fs fileSet) list() []string {
	return slices.Sorted(maps.Keys(fs))
}
