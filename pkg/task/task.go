// Package task defines the unit of work that flows from the scanner to the
// executor: a Task naming one filesystem entry and the Action decided for it.
package task

import (
	"path/filepath"
)

// ActionKind enumerates the classifications the decision engine can produce.
type ActionKind int

const (
	// CopyNew copies an entry that has no counterpart in the prior generation.
	CopyNew ActionKind = iota
	// CopyModified copies an entry whose counterpart differs.
	CopyModified
	// Link hardlinks the destination to the reference entry.
	Link
	// MakeSymlink recreates a symbolic link with the source's target.
	MakeSymlink
	// CreateDir ensures the destination directory exists.
	CreateDir
	// Skip performs no I/O.
	Skip
)

var kindNames = map[ActionKind]string{
	CopyNew:      "copy_new",
	CopyModified: "copy_modified",
	Link:         "link",
	MakeSymlink:  "symlink",
	CreateDir:    "create_dir",
	Skip:         "skip",
}

func (k ActionKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Action is the classification of one entry. Ref is set for Link, Target
// for MakeSymlink; both are empty otherwise.
type Action struct {
	Kind   ActionKind
	Ref    string
	Target string
}

func CopyNewAction() Action              { return Action{Kind: CopyNew} }
func CopyModifiedAction() Action         { return Action{Kind: CopyModified} }
func LinkAction(ref string) Action       { return Action{Kind: Link, Ref: ref} }
func SymlinkAction(target string) Action { return Action{Kind: MakeSymlink, Target: target} }
func CreateDirAction() Action            { return Action{Kind: CreateDir} }
func SkipAction() Action                 { return Action{Kind: Skip} }

// IsCopy reports whether the action transfers file bytes.
func (a Action) IsCopy() bool {
	return a.Kind == CopyNew || a.Kind == CopyModified
}

// Task is one unit of work. RelPath uses forward slashes and is the identity
// key across generations. RefPath is empty when there is no prior generation.
type Task struct {
	RelPath  string
	SrcPath  string
	DestPath string
	RefPath  string
}

// HasRef reports whether a prior generation counterpart was computed.
func (t Task) HasRef() bool {
	return t.RefPath != ""
}

// Layout holds the three roots a Task is resolved against.
type Layout struct {
	// SourceRoot is the scan root, possibly remapped into a snapshot.
	SourceRoot string
	// DestRoot is the in-progress generation directory.
	DestRoot string
	// RefRoot is the previous committed generation, or empty.
	RefRoot string
}

// New resolves rel (slash separated) against the layout.
func (l Layout) New(rel string) Task {
	native := filepath.FromSlash(rel)
	t := Task{
		RelPath:  rel,
		SrcPath:  filepath.Join(l.SourceRoot, native),
		DestPath: filepath.Join(l.DestRoot, native),
	}
	if l.RefRoot != "" {
		t.RefPath = filepath.Join(l.RefRoot, native)
	}
	return t
}

// Canonical returns the layout with every root passed through toLong, the
// platform's long path form. Tasks built from it inherit the form.
func (l Layout) Canonical(toLong func(string) string) Layout {
	c := Layout{
		SourceRoot: toLong(l.SourceRoot),
		DestRoot:   toLong(l.DestRoot),
	}
	if l.RefRoot != "" {
		c.RefRoot = toLong(l.RefRoot)
	}
	return c
}

// Item is the (Task, Action) pair sent through the pipeline channel.
type Item struct {
	Task   Task
	Action Action
}
