/*
Package registry is the host-global Port Registry (§4.1): a single SQLite
database at ~/.agent-farm/global.db mapping each project directory to a
stable 100-port block, shared by every Orchestrator instance on the host.

Allocation walks B = 4200, 4300, 4400, … inside one BEGIN IMMEDIATE
transaction and returns the first unused block; the WAL + 5s busy-timeout
pairing (same as pkg/storage) is what lets two Orchestrator processes race
on GetOrAllocate safely.
*/
package registry
