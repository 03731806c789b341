package job

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/Iron-Ham/flixbridge/internal/errors"
)

// Kind is the request tag understood by the compiler.
type Kind string

// File membership changes. These go to the priority lane.
const (
	KindAddURI Kind = "api/addUri"
	KindRemURI Kind = "api/remUri"
	KindAddPkg Kind = "api/addPkg"
	KindRemPkg Kind = "api/remPkg"
	KindAddJar Kind = "api/addJar"
	KindRemJar Kind = "api/remJar"
)

// Queries and commands. These go to the normal lane.
const (
	KindVersion          Kind = "api/version"
	KindShutdown         Kind = "api/shutdown"
	KindCheck            Kind = "lsp/check"
	KindCodelens         Kind = "lsp/codelens"
	KindComplete         Kind = "lsp/complete"
	KindHighlight        Kind = "lsp/highlight"
	KindHover            Kind = "lsp/hover"
	KindGoto             Kind = "lsp/goto"
	KindImplementation   Kind = "lsp/implementation"
	KindRename           Kind = "lsp/rename"
	KindDocumentSymbols  Kind = "lsp/documentSymbols"
	KindWorkspaceSymbols Kind = "lsp/workspaceSymbols"
	KindUses             Kind = "lsp/uses"
	KindSemanticTokens   Kind = "lsp/semanticTokens"
	KindInlayHints       Kind = "lsp/inlayHints"
	KindCodeAction       Kind = "lsp/codeAction"
	KindShowAst          Kind = "lsp/showAst"
	KindRunMain          Kind = "cmd/runMain"
	KindRunTests         Kind = "cmd/runTests"
)

var fileSetKinds = []Kind{
	KindAddURI, KindRemURI,
	KindAddPkg, KindRemPkg,
	KindAddJar, KindRemJar,
}

var queryKinds = []Kind{
	KindVersion, KindShutdown,
	KindCheck, KindCodelens, KindComplete, KindHighlight, KindHover,
	KindGoto, KindImplementation, KindRename, KindDocumentSymbols,
	KindWorkspaceSymbols, KindUses, KindSemanticTokens, KindInlayHints,
	KindCodeAction, KindShowAst,
	KindRunMain, KindRunTests,
}

// Kinds returns every known kind, file membership changes first.
func Kinds() []Kind {
	return slices.Concat(fileSetKinds, queryKinds)
}

// ParseKind validates s as a kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.ChangesFileSet() || slices.Contains(queryKinds, k)
}

// ChangesFileSet reports whether k adds or removes a source, package or jar.
func (k Kind) ChangesFileSet() bool {
	return slices.Contains(fileSetKinds, k)
}

// AddsFile reports whether k adds a source, package or jar.
func (k Kind) AddsFile() bool {
	switch k {
	case KindAddURI, KindAddPkg, KindAddJar:
		return true
	}
	return false
}

// Lane returns the queue lane for k.
func (k Kind) Lane() Lane {
	if k.ChangesFileSet() {
		return LanePriority
	}
	return LaneNormal
}

func (k Kind) String() string { return string(k) }

// FileKinds returns the add and remove kinds for a workspace file, chosen by
// extension: .flix sources, .fpkg packages and .jar archives. ok is false for
// any other file.
func FileKinds(name string) (add, remove Kind, ok bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".flix":
		return KindAddURI, KindRemURI, true
	case ".fpkg":
		return KindAddPkg, KindRemPkg, true
	case ".jar":
		return KindAddJar, KindRemJar, true
	default:
		return "", "", false
	}
}

// Lane is one of the two scheduler sub-queues.
type Lane int

const (
	LanePriority Lane = iota
	LaneNormal
)

// String returns the lane name.
func (l Lane) String() string {
	switch l {
	case LanePriority:
		return "priority"
	case LaneNormal:
		return "normal"
	default:
		return "unknown"
	}
}
