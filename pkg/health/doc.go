/*
Package health provides pluggable liveness checking.

Agent Farm's only checker is HTTPChecker: the Tower Server uses it to probe
a project dashboard's /api/state endpoint before reporting that project as
alive (§4.7). Builder and utility-terminal liveness is tracked by pid
instead (pkg/supervisor.IsAlive), since those are plain child processes
with no HTTP endpoint of their own to poll.
*/
package health
