/*
Package tower implements the Tower Server (§4.7): a host-level HTTP
endpoint enumerating every running Orchestrator instance by querying the
Port Registry and probing each project's dashboard fresh on every request
(SPEC_FULL.md resolves "probe fresh vs cache" in favor of fresh, since
Tower is a rarely-polled, operator-facing view where staleness would be
actively misleading).
*/
package tower
