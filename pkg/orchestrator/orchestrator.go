package orchestrator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentfarm/agentfarm/pkg/pathsafe"
	"github.com/agentfarm/agentfarm/pkg/registry"
	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/supervisor"
	"github.com/agentfarm/agentfarm/pkg/types"
	"github.com/agentfarm/agentfarm/pkg/worktree"
)

// SpawnRetryLimit is the port-conflict retry count for spawn (§4.5, Open
// Question — resolved as a named constant, overridable via Config.SpawnRetries).
const SpawnRetryLimit = 5

// Port-block offsets, relative to a project's base port B (§3).
const (
	offsetDashboard  = 0
	offsetArchitect  = 1
	offsetBuilderLo  = 10
	offsetBuilderHi  = 29
	offsetUtilLo     = 30
	offsetUtilHi     = 49
	offsetAnnotLo    = 50
	offsetAnnotHi    = 69
	maxTabsPerProject = 20
)

var (
	// ErrArchitectExists is returned by Start when an architect row already
	// exists for this project.
	ErrArchitectExists = fmt.Errorf("orchestrator: architect already running")
	// ErrPortBusy is returned when the computed base port is already bound.
	ErrPortBusy = fmt.Errorf("orchestrator: base port already bound")
	// ErrTabLimit is returned when the project already has 20 open tabs.
	ErrTabLimit = fmt.Errorf("orchestrator: tab limit (20) reached")
)

// DashboardLauncher starts the Dashboard Server as its own OS process bound
// to 127.0.0.1:basePort and returns its pid. Kept as an injected function
// rather than a direct pkg/dashboard import to avoid a supervisor package
// depending on the HTTP layer it is itself supervised by.
type DashboardLauncher func(ctx context.Context, projectPath string, basePort int) (pid int, err error)

// Orchestrator couples the Port Registry, State Store, Process Supervisor,
// and Worktree Manager for one project directory.
type Orchestrator struct {
	ProjectPath string
	SpawnRetries int

	store      *storage.Store
	reg        *registry.Registry
	sup        *supervisor.Supervisor
	wt         *worktree.Manager
	launchDash DashboardLauncher
	log        zerolog.Logger
}

// New creates an Orchestrator for one project. store is that project's
// already-open State Store; reg is the host-global Port Registry, opened
// once per process regardless of how many projects a single invocation
// touches.
func New(projectPath string, store *storage.Store, reg *registry.Registry, sup *supervisor.Supervisor, wt *worktree.Manager, launchDash DashboardLauncher, spawnRetries int, logger zerolog.Logger) *Orchestrator {
	if spawnRetries <= 0 {
		spawnRetries = SpawnRetryLimit
	}
	return &Orchestrator{
		ProjectPath:  projectPath,
		SpawnRetries: spawnRetries,
		store:        store,
		reg:          reg,
		sup:          sup,
		wt:           wt,
		launchDash:   launchDash,
		log:          logger,
	}
}

func (o *Orchestrator) projectSlug() string {
	return worktree.Slugify(filepath.Base(o.ProjectPath))
}

// Start allocates a base port, verifies no architect row already exists,
// scans for orphaned sessions, spawns the architect session/bridge on
// base+1, spawns the Dashboard Server on base+0, and persists state (§4.5).
func (o *Orchestrator) Start(ctx context.Context, pid int, killOrphans bool) (basePort int, err error) {
	if _, err := o.store.GetArchitect(); err == nil {
		return 0, ErrArchitectExists
	} else if err != storage.ErrNotFound {
		return 0, fmt.Errorf("orchestrator: check existing architect: %w", err)
	}

	basePort, err = o.reg.GetOrAllocate(o.ProjectPath, pid)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: allocate port block: %w", err)
	}

	if portInUse(basePort + offsetDashboard) {
		return 0, fmt.Errorf("%w: %d", ErrPortBusy, basePort+offsetDashboard)
	}

	if err := o.reapOrphans(ctx, killOrphans); err != nil {
		return 0, fmt.Errorf("orchestrator: orphan scan: %w", err)
	}

	architectPort := basePort + offsetArchitect
	sessionName := fmt.Sprintf("af-architect-%d", architectPort)
	if err := o.sup.StartSession(ctx, supervisor.SessionSpec{Name: sessionName}); err != nil {
		return 0, fmt.Errorf("orchestrator: start architect session: %w", err)
	}
	bridge, err := o.sup.SpawnBridge(ctx, sessionName, architectPort, "")
	if err != nil {
		_ = o.sup.KillSession(ctx, sessionName)
		return 0, fmt.Errorf("orchestrator: spawn architect bridge: %w", err)
	}

	if err := o.store.SetArchitect(&types.Architect{
		Port:        architectPort,
		PID:         bridge.PID,
		Command:     strings.Join(os.Args, " "),
		StartedAt:   currentTime(),
		SessionName: sessionName,
	}); err != nil {
		_ = supervisor.KillGracefully(bridge.PID)
		_ = o.sup.KillSession(ctx, sessionName)
		return 0, fmt.Errorf("orchestrator: persist architect row: %w", err)
	}

	if o.launchDash != nil {
		if _, err := o.launchDash(ctx, o.ProjectPath, basePort); err != nil {
			return basePort, fmt.Errorf("orchestrator: launch dashboard: %w", err)
		}
	}

	return basePort, nil
}

// Stop loads all rows, kills every bridge and session gracefully, and
// clears state. The port-registry row is retained for path stability.
func (o *Orchestrator) Stop(ctx context.Context) error {
	state, err := o.store.LoadState()
	if err != nil {
		return fmt.Errorf("orchestrator: load state: %w", err)
	}

	if state.Architect != nil {
		o.killAndForget(ctx, state.Architect.PID, state.Architect.SessionName)
	}
	for _, b := range state.Builders {
		o.killAndForget(ctx, b.PID, b.SessionName)
	}
	for _, u := range state.Utils {
		o.killAndForget(ctx, u.PID, u.SessionName)
	}
	for _, a := range state.Annotations {
		o.killAndForget(ctx, a.PID, "")
	}

	return o.store.Clear()
}

func (o *Orchestrator) killAndForget(ctx context.Context, pid int, sessionName string) {
	if err := supervisor.KillGracefully(pid); err != nil {
		o.log.Warn().Int("pid", pid).Err(err).Msg("kill during stop failed")
	}
	if sessionName != "" {
		if err := o.sup.KillSession(ctx, sessionName); err != nil {
			o.log.Warn().Str("session", sessionName).Err(err).Msg("kill session during stop failed")
		}
	}
}

func (o *Orchestrator) reapOrphans(ctx context.Context, kill bool) error {
	state, err := o.store.LoadState()
	if err != nil {
		return err
	}
	known := map[string]bool{}
	if state.Architect != nil {
		known[state.Architect.SessionName] = true
	}
	for _, b := range state.Builders {
		known[b.SessionName] = true
	}
	for _, u := range state.Utils {
		known[u.SessionName] = true
	}

	orphans, err := o.sup.ScanOrphans(ctx, known)
	if err != nil {
		return err
	}
	for _, name := range orphans {
		o.log.Warn().Str("session", name).Msg("orphaned multiplexer session detected")
		if kill {
			if err := o.sup.KillSession(ctx, name); err != nil {
				o.log.Warn().Str("session", name).Err(err).Msg("failed to kill orphaned session")
			}
		}
	}
	return nil
}

// SpawnMode selects one of the five spawn variants (§4.5).
type SpawnMode string

const (
	SpawnSpec     SpawnMode = "spec"
	SpawnTask     SpawnMode = "task"
	SpawnProtocol SpawnMode = "protocol"
	SpawnShell    SpawnMode = "shell"
	SpawnWorktree SpawnMode = "worktree"
)

// SpawnOptions parameterizes Spawn across its five modes.
type SpawnOptions struct {
	Mode          SpawnMode
	Name          string
	TaskText      string
	ProtocolName  string
	TrackingIssue int
	Files         []string
	NoRole        bool
	ClientPage    string
}

// Spawn creates a new builder of the requested mode: a worktree/branch for
// spec/task/protocol/worktree modes, none for shell; a port scanned upward
// from the builder offset range; a multiplexer session and bridge; and a
// persisted row. On a port-uniqueness conflict from a concurrent spawn, the
// partially started bridge is killed and the attempt retried with a fresh
// snapshot, up to o.SpawnRetries times (§4.5).
func (o *Orchestrator) Spawn(ctx context.Context, basePort int, opts SpawnOptions) (*types.Builder, error) {
	state, err := o.store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load state: %w", err)
	}
	if tabCount(state) >= maxTabsPerProject {
		return nil, ErrTabLimit
	}

	id := o.nextBuilderID(state, opts.Mode)
	name := opts.Name
	if name == "" {
		name = string(opts.Mode) + "-" + id
	}

	var attempt int
	for {
		attempt++
		builder, err := o.trySpawn(ctx, basePort, id, name, opts, state)
		if err == nil {
			return builder, nil
		}
		if err != storage.ErrPortConflict || attempt >= o.SpawnRetries {
			return nil, err
		}
		state, err = o.store.LoadState()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: reload state after port conflict: %w", err)
		}
	}
}

func (o *Orchestrator) trySpawn(ctx context.Context, basePort int, id, name string, opts SpawnOptions, state *types.State) (*types.Builder, error) {
	used := usedPorts(state)
	port, err := nextFreePort(basePort, offsetBuilderLo, offsetBuilderHi, used)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: select builder port: %w", err)
	}

	var worktreePath, branch string
	if opts.Mode != SpawnShell {
		worktreePath, branch, err = o.wt.Spawn(ctx, id, name)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: worktree spawn: %w", err)
		}
	}

	scratchCmd, err := writeBuilderScratch(worktreePath, opts)
	if err != nil {
		o.cleanupFailedWorktree(ctx, worktreePath, branch)
		return nil, fmt.Errorf("orchestrator: write builder scratch files: %w", err)
	}

	sessionName := fmt.Sprintf("builder-%s-%s", o.projectSlug(), id)
	if err := o.sup.StartSession(ctx, supervisor.SessionSpec{Name: sessionName, ScratchCmd: scratchCmd}); err != nil {
		o.cleanupFailedWorktree(ctx, worktreePath, branch)
		return nil, fmt.Errorf("orchestrator: start builder session: %w", err)
	}

	bridge, err := o.sup.SpawnBridge(ctx, sessionName, port, opts.ClientPage)
	if err != nil {
		_ = o.sup.KillSession(ctx, sessionName)
		o.cleanupFailedWorktree(ctx, worktreePath, branch)
		return nil, fmt.Errorf("orchestrator: spawn builder bridge: %w", err)
	}

	builder := &types.Builder{
		ID:            id,
		Name:          name,
		Port:          port,
		PID:           bridge.PID,
		Status:        types.BuilderStatusSpawning,
		WorktreePath:  worktreePath,
		Branch:        branch,
		SessionName:   sessionName,
		Type:          types.BuilderType(opts.Mode),
		TaskText:      opts.TaskText,
		ProtocolName:  opts.ProtocolName,
		TrackingIssue: opts.TrackingIssue,
		CreatedAt:     currentTime(),
	}

	if err := o.store.UpsertBuilder(builder); err != nil {
		_ = supervisor.KillGracefully(bridge.PID)
		_ = o.sup.KillSession(ctx, sessionName)
		o.cleanupFailedWorktree(ctx, worktreePath, branch)
		return nil, err
	}

	return builder, nil
}

// writeBuilderScratch writes the three builder scratch files into
// worktreePath (§4.4 step 5, §6): the initial prompt, the role definition
// (unless NoRole), and a launch script that cats both and drops into an
// interactive shell. Shell-mode builders have no worktree and get no
// scratch files or ScratchCmd (empty worktreePath short-circuits). Returns
// the command to run in the builder's multiplexer session.
func writeBuilderScratch(worktreePath string, opts SpawnOptions) (string, error) {
	if worktreePath == "" {
		return "", nil
	}

	promptPath := filepath.Join(worktreePath, ".builder-prompt.txt")
	if err := os.WriteFile(promptPath, []byte(builderInitialPrompt(opts)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", promptPath, err)
	}

	var script strings.Builder
	script.WriteString("#!/bin/sh\ncat .builder-prompt.txt\n")
	if !opts.NoRole {
		rolePath := filepath.Join(worktreePath, ".builder-role.md")
		if err := os.WriteFile(rolePath, []byte(builderRoleDefinition(opts)), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", rolePath, err)
		}
		script.WriteString("cat .builder-role.md\n")
	}
	script.WriteString(`exec "${SHELL:-/bin/sh}"` + "\n")

	startPath := filepath.Join(worktreePath, ".builder-start.sh")
	if err := os.WriteFile(startPath, []byte(script.String()), 0o755); err != nil {
		return "", fmt.Errorf("write %s: %w", startPath, err)
	}

	return fmt.Sprintf("cd %s && sh .builder-start.sh", worktreePath), nil
}

// builderInitialPrompt composes the task framing for a builder's
// .builder-prompt.txt, which varies by spawn mode (§4.4 Spawn step 5).
// Worktree-only builders get no initial task (§4.4).
func builderInitialPrompt(opts SpawnOptions) string {
	var b strings.Builder
	switch opts.Mode {
	case SpawnSpec:
		fmt.Fprintf(&b, "Implement spec/project: %s\n", opts.Name)
	case SpawnTask:
		b.WriteString(opts.TaskText)
		b.WriteString("\n")
	case SpawnProtocol:
		fmt.Fprintf(&b, "Follow protocol: %s\n", opts.ProtocolName)
	}
	if opts.TrackingIssue != 0 {
		fmt.Fprintf(&b, "Tracking issue: #%d\n", opts.TrackingIssue)
	}
	if len(opts.Files) > 0 {
		b.WriteString("\nRelevant files:\n")
		for _, f := range opts.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// builderRoleDefinition composes .builder-role.md, skipped entirely when
// NoRole is set.
func builderRoleDefinition(opts SpawnOptions) string {
	return fmt.Sprintf("# Role\n\nYou are the %s builder for this worktree. Make your changes on the "+
		"current branch only; do not touch files outside it.\n", opts.Mode)
}

func (o *Orchestrator) cleanupFailedWorktree(ctx context.Context, worktreePath, branch string) {
	if worktreePath == "" {
		return
	}
	if err := o.wt.Cleanup(ctx, worktreePath, branch, true); err != nil {
		o.log.Warn().Str("worktree", worktreePath).Err(err).Msg("cleanup of partially spawned worktree failed")
	}
}

// Cleanup implements §4.4's cleanup sequence: refuse on uncommitted changes
// unless force, kill the bridge then the session, remove the worktree,
// delete the branch, remove the State Store row, prune again.
func (o *Orchestrator) Cleanup(ctx context.Context, builderID string, force bool) error {
	b, err := o.store.GetBuilder(builderID)
	if err != nil {
		return err
	}

	if b.WorktreePath != "" {
		dirty, err := o.wt.HasUncommittedChanges(ctx, b.WorktreePath)
		if err != nil {
			return err
		}
		if dirty && !force {
			return worktree.ErrUncommittedChanges
		}
	}

	if err := supervisor.KillGracefully(b.PID); err != nil {
		o.log.Warn().Int("pid", b.PID).Err(err).Msg("kill bridge during cleanup failed")
	}
	if err := o.sup.KillSession(ctx, b.SessionName); err != nil {
		o.log.Warn().Str("session", b.SessionName).Err(err).Msg("kill session during cleanup failed")
	}

	if b.WorktreePath != "" {
		if err := o.wt.Cleanup(ctx, b.WorktreePath, b.Branch, force); err != nil {
			return err
		}
	}

	return o.store.DeleteBuilder(builderID)
}

// SendOptions configure message delivery (§4.5, §6).
type SendOptions struct {
	All       bool
	File      bool
	Interrupt bool
	Raw       bool
	NoEnter   bool
	Sender    string
}

// Send delivers message into a builder's (or all builders') multiplexer
// session via the host multiplexer's paste-buffer mechanism — never
// character-by-character injection, which truncates or corrupts around
// 256 B (§4.5).
func (o *Orchestrator) Send(ctx context.Context, target string, message string, opts SendOptions) error {
	state, err := o.store.LoadState()
	if err != nil {
		return err
	}

	var sessions []string
	if opts.All {
		for _, b := range state.Builders {
			sessions = append(sessions, b.SessionName)
		}
	} else {
		b, err := o.store.GetBuilder(target)
		if err != nil {
			return err
		}
		sessions = []string{b.SessionName}
	}

	content := message
	if opts.File {
		path, err := pathsafe.Validate(o.ProjectPath, message)
		if err != nil {
			return fmt.Errorf("orchestrator: resolve --file path %s: %w", message, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("orchestrator: read file %s: %w", message, err)
		}
		content = string(data)
	}

	body := content
	if !opts.Raw {
		sender := opts.Sender
		if sender == "" {
			sender = "architect"
		}
		body = fmt.Sprintf("[%s]\n%s\n", sender, content)
	}

	for _, session := range sessions {
		if opts.Interrupt {
			if err := o.sup.SendInterrupt(ctx, session); err != nil {
				return fmt.Errorf("orchestrator: send interrupt to %s: %w", session, err)
			}
		}
		if err := o.sup.PasteBuffer(ctx, session, body, !opts.NoEnter); err != nil {
			return fmt.Errorf("orchestrator: paste to %s: %w", session, err)
		}
	}
	return nil
}

// SpawnUtilOptions parameterizes a utility-terminal spawn (§4.6
// POST /api/tabs/shell).
type SpawnUtilOptions struct {
	Name       string
	Worktree   bool
	ClientPage string
}

// SpawnUtil creates a new utility terminal: a worktree-backed shell when
// Worktree is set, a plain shell otherwise. Utility terminals have no
// branch/initial prompt (§4.4).
func (o *Orchestrator) SpawnUtil(ctx context.Context, basePort int, opts SpawnUtilOptions) (*types.UtilTerminal, error) {
	state, err := o.store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load state: %w", err)
	}
	if tabCount(state) >= maxTabsPerProject {
		return nil, ErrTabLimit
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := opts.Name
	if name == "" {
		name = "shell-" + id
	}

	var attempt int
	for {
		attempt++
		util, err := o.trySpawnUtil(ctx, basePort, id, name, opts, state)
		if err == nil {
			return util, nil
		}
		if err != storage.ErrPortConflict || attempt >= o.SpawnRetries {
			return nil, err
		}
		state, err = o.store.LoadState()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: reload state after port conflict: %w", err)
		}
	}
}

func (o *Orchestrator) trySpawnUtil(ctx context.Context, basePort int, id, name string, opts SpawnUtilOptions, state *types.State) (*types.UtilTerminal, error) {
	used := usedPorts(state)
	port, err := nextFreePort(basePort, offsetUtilLo, offsetUtilHi, used)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: select util port: %w", err)
	}

	var worktreePath string
	if opts.Worktree {
		worktreePath, _, err = o.wt.Spawn(ctx, id, name)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: worktree spawn for util: %w", err)
		}
	}

	sessionName := fmt.Sprintf("af-shell-%s", id)
	if err := o.sup.StartSession(ctx, supervisor.SessionSpec{Name: sessionName}); err != nil {
		o.cleanupFailedWorktree(ctx, worktreePath, "")
		return nil, fmt.Errorf("orchestrator: start util session: %w", err)
	}
	bridge, err := o.sup.SpawnBridge(ctx, sessionName, port, opts.ClientPage)
	if err != nil {
		_ = o.sup.KillSession(ctx, sessionName)
		o.cleanupFailedWorktree(ctx, worktreePath, "")
		return nil, fmt.Errorf("orchestrator: spawn util bridge: %w", err)
	}

	util := &types.UtilTerminal{
		ID:           id,
		Name:         name,
		Port:         port,
		PID:          bridge.PID,
		SessionName:  sessionName,
		WorktreePath: worktreePath,
		CreatedAt:    currentTime(),
	}

	ok, err := o.store.TryAddUtil(util)
	if err != nil {
		_ = supervisor.KillGracefully(bridge.PID)
		_ = o.sup.KillSession(ctx, sessionName)
		o.cleanupFailedWorktree(ctx, worktreePath, "")
		return nil, err
	}
	if !ok {
		_ = supervisor.KillGracefully(bridge.PID)
		_ = o.sup.KillSession(ctx, sessionName)
		o.cleanupFailedWorktree(ctx, worktreePath, "")
		return nil, storage.ErrPortConflict
	}

	return util, nil
}

// DeleteUtil tears down a utility terminal: bridge, session, optional
// worktree, and State Store row.
func (o *Orchestrator) DeleteUtil(ctx context.Context, id string) error {
	u, err := o.store.GetUtil(id)
	if err != nil {
		return err
	}
	if err := supervisor.KillGracefully(u.PID); err != nil {
		o.log.Warn().Int("pid", u.PID).Err(err).Msg("kill bridge during util delete failed")
	}
	if err := o.sup.KillSession(ctx, u.SessionName); err != nil {
		o.log.Warn().Str("session", u.SessionName).Err(err).Msg("kill session during util delete failed")
	}
	if u.WorktreePath != "" {
		if err := o.wt.Cleanup(ctx, u.WorktreePath, "", true); err != nil {
			o.log.Warn().Str("worktree", u.WorktreePath).Err(err).Msg("worktree cleanup during util delete failed")
		}
	}
	return o.store.DeleteUtil(id)
}

// SpawnAnnotation creates a file-viewer terminal for a project-relative
// path already validated by the caller (§4.6 POST /api/tabs/file).
func (o *Orchestrator) SpawnAnnotation(ctx context.Context, basePort int, filePath string, parentType types.AnnotationParentType, parentID string) (*types.Annotation, error) {
	state, err := o.store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load state: %w", err)
	}
	if tabCount(state) >= maxTabsPerProject {
		return nil, ErrTabLimit
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	used := usedPorts(state)
	port, err := nextFreePort(basePort, offsetAnnotLo, offsetAnnotHi, used)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: select annotation port: %w", err)
	}

	bridge, err := o.sup.SpawnBridge(ctx, "", port, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: spawn annotation viewer: %w", err)
	}

	annotation := &types.Annotation{
		ID:         id,
		FilePath:   filePath,
		Port:       port,
		PID:        bridge.PID,
		ParentType: parentType,
		ParentID:   parentID,
		CreatedAt:  currentTime(),
	}
	if err := o.store.InsertAnnotation(annotation); err != nil {
		_ = supervisor.KillGracefully(bridge.PID)
		return nil, err
	}
	return annotation, nil
}

// DeleteAnnotation tears down an annotation viewer.
func (o *Orchestrator) DeleteAnnotation(id string) error {
	a, err := o.store.GetAnnotation(id)
	if err != nil {
		return err
	}
	if err := supervisor.KillGracefully(a.PID); err != nil {
		o.log.Warn().Int("pid", a.PID).Err(err).Msg("kill process during annotation delete failed")
	}
	return o.store.DeleteAnnotation(id)
}

// ResolveTerminal maps a /terminal/<id> path segment to a loopback port, for
// use as a pkg/proxy.Resolver. id is "architect", "builder-<id>", or
// "util-<id>" (§4.6, Terminal id resolution).
func (o *Orchestrator) ResolveTerminal(id string) (port int, ok bool, err error) {
	switch {
	case id == "architect":
		a, err := o.store.GetArchitect()
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return a.Port, true, nil
	case strings.HasPrefix(id, "builder-"):
		b, err := o.store.GetBuilder(strings.TrimPrefix(id, "builder-"))
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return b.Port, true, nil
	case strings.HasPrefix(id, "util-"):
		u, err := o.store.GetUtil(strings.TrimPrefix(id, "util-"))
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return u.Port, true, nil
	default:
		return 0, false, nil
	}
}

// AutoCleanup iterates utility and annotation rows and removes any whose
// process id is no longer running, killing the matching multiplexer
// session first (§4.6, Liveness and autocleanup). Builders are never
// auto-removed — their cleanup must stay explicit so uncommitted work is
// never silently discarded.
func (o *Orchestrator) AutoCleanup(ctx context.Context) error {
	state, err := o.store.LoadState()
	if err != nil {
		return err
	}

	for _, u := range state.Utils {
		if supervisor.IsAlive(u.PID) {
			continue
		}
		if u.SessionName != "" {
			_ = o.sup.KillSession(ctx, u.SessionName)
		}
		if err := o.store.DeleteUtil(u.ID); err != nil && err != storage.ErrNotFound {
			o.log.Warn().Str("util", u.ID).Err(err).Msg("autocleanup: delete util row failed")
		}
	}

	for _, a := range state.Annotations {
		if supervisor.IsAlive(a.PID) {
			continue
		}
		if err := o.store.DeleteAnnotation(a.ID); err != nil && err != storage.ErrNotFound {
			o.log.Warn().Str("annotation", a.ID).Err(err).Msg("autocleanup: delete annotation row failed")
		}
	}
	return nil
}

// Rename changes a builder's human-readable name.
func (o *Orchestrator) Rename(id, name string) error {
	return o.store.RenameBuilder(id, name)
}

// Status returns the current state snapshot.
func (o *Orchestrator) Status() (*types.State, error) {
	state, err := o.store.LoadState()
	if err != nil {
		return nil, err
	}
	state.Builders = sortBuilders(state.Builders)
	return state, nil
}

// PortsList returns every row in the host-global Port Registry.
func (o *Orchestrator) PortsList() ([]types.PortAllocationView, error) {
	return o.reg.List()
}

// PortsCleanup reclaims registry rows whose project directory no longer
// exists.
func (o *Orchestrator) PortsCleanup() (removed []string, remaining int, err error) {
	return o.reg.CleanupStale()
}

func (o *Orchestrator) nextBuilderID(state *types.State, mode SpawnMode) string {
	if mode != SpawnSpec {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	max := 0
	for _, b := range state.Builders {
		if b.Type != types.BuilderTypeSpec {
			continue
		}
		if n, err := strconv.Atoi(b.ID); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%04d", max+1)
}

func tabCount(state *types.State) int {
	return len(state.Builders) + len(state.Utils) + len(state.Annotations)
}

func usedPorts(state *types.State) map[int]bool {
	used := map[int]bool{}
	if state.Architect != nil {
		used[state.Architect.Port] = true
	}
	for _, b := range state.Builders {
		used[b.Port] = true
	}
	for _, u := range state.Utils {
		used[u.Port] = true
	}
	for _, a := range state.Annotations {
		used[a.Port] = true
	}
	return used
}

// nextFreePort scans upward from loOffset through the rest of the 100-port
// block (not stopping at hiOffset, which is only a starting range per §3)
// for the first port neither recorded as used nor already bound.
func nextFreePort(basePort, loOffset, hiOffset int, used map[int]bool) (int, error) {
	for offset := loOffset; offset < 100; offset++ {
		port := basePort + offset
		if !used[port] && !portInUse(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("orchestrator: no free port in block starting at %d", basePort)
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func currentTime() time.Time {
	return time.Now()
}

// sortBuilders returns builders sorted by id for stable CLI output.
func sortBuilders(builders []*types.Builder) []*types.Builder {
	sorted := make([]*types.Builder, len(builders))
	copy(sorted, builders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
