/*
Package orchestrator implements the top-level commands that couple the
Port Registry, State Store, Process Supervisor, and Worktree Manager
(§4.5): start, stop, spawn, cleanup, send, rename, status, ports. Each
operation runs to completion in a short-lived process invocation — there is
no orchestrator-owned background goroutine; the Dashboard Server is the
only long-lived coordinator inside a project (§4.5, Scheduling model).
*/
package orchestrator
