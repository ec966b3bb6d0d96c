/*
Package worktree isolates each code-producing builder inside its own
working directory on a dedicated branch (§4.4), by shelling out to the git
CLI the same way the teacher shells out to lima/containerd binaries rather
than vendoring a Go git implementation — no example repo in the pack
imports go-git.
*/
package worktree
