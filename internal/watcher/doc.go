// Package watcher turns file system changes in a Flix workspace into
// add and remove jobs.
//
// A [Watcher] follows a workspace tree with fsnotify. Creating or writing an
// included file submits the matching add job (api/addUri, api/addPkg or
// api/addJar); removing or renaming it submits the remove job. Bursts of
// events on one file are debounced into a single job. [Discover] lists the
// included files of one or more roots for the initial session start.
package watcher
