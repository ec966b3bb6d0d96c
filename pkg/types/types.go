package types

import "time"

// BuilderType distinguishes the five spawn modes (§4.5).
type BuilderType string

const (
	BuilderTypeSpec     BuilderType = "spec"
	BuilderTypeTask     BuilderType = "task"
	BuilderTypeProtocol BuilderType = "protocol"
	BuilderTypeShell    BuilderType = "shell"
	BuilderTypeWorktree BuilderType = "worktree"
)

// BuilderStatus is constrained to this enumerated set by the schema.
type BuilderStatus string

const (
	BuilderStatusSpawning     BuilderStatus = "spawning"
	BuilderStatusImplementing BuilderStatus = "implementing"
	BuilderStatusBlocked      BuilderStatus = "blocked"
	BuilderStatusPRReady      BuilderStatus = "pr-ready"
	BuilderStatusComplete     BuilderStatus = "complete"
)

// AnnotationParentType tags which kind of entity opened a file viewer.
type AnnotationParentType string

const (
	AnnotationParentArchitect AnnotationParentType = "architect"
	AnnotationParentBuilder   AnnotationParentType = "builder"
	AnnotationParentUtil      AnnotationParentType = "util"
)

// Architect is the singleton coordinator process for a project. At most one
// row exists at any time; its primary key is the constant 1.
type Architect struct {
	Port           int
	PID            int
	Command        string
	StartedAt      time.Time
	SessionName    string
}

// Builder is a code-producing (or shell) child process inside its own
// worktree. Port is unique across every table in the project store;
// WorktreePath and Branch are unique and empty only for BuilderTypeShell.
type Builder struct {
	ID              string
	Name            string
	Port            int
	PID             int
	Status          BuilderStatus
	Phase           string
	WorktreePath    string
	Branch          string
	SessionName     string
	Type            BuilderType
	TaskText        string
	ProtocolName    string
	TrackingIssue   int
	CreatedAt       time.Time
}

// UtilTerminal is a supporting shell, optionally backed by its own worktree
// that must be cleaned up when the tab closes.
type UtilTerminal struct {
	ID           string
	Name         string
	Port         int
	PID          int
	SessionName  string
	WorktreePath string
	CreatedAt    time.Time
}

// Annotation is a short-lived file viewer attached to an architect, builder,
// or util tab. FilePath is always project-rooted and passes path validation
// (pkg/pathsafe) before an Annotation is created.
type Annotation struct {
	ID         string
	FilePath   string
	Port       int
	PID        int
	ParentType AnnotationParentType
	ParentID   string
	CreatedAt  time.Time
}

// State is the consistent snapshot LoadState() returns: architect, builders,
// utils, and annotations as observed inside one read transaction.
type State struct {
	Architect   *Architect
	Builders    []*Builder
	Utils       []*UtilTerminal
	Annotations []*Annotation
}

// PortAllocation is a row in the host-global Port Registry: one per project
// directory, keyed by the absolute path.
type PortAllocation struct {
	Path         string
	BasePort     int
	PID          int
	RegisteredAt time.Time
	LastUsedAt   time.Time
}

// PortAllocationView adds the on-disk existence check List() reports.
type PortAllocationView struct {
	PortAllocation
	Exists bool
}
