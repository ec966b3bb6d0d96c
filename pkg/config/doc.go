/*
Package config builds the explicit Config value every command threads
through its constructors (Design Notes §9: no ambient/global configuration).
Each command layers CLI flags over an optional ~/.agent-farm/config.yaml
over built-in defaults, then passes the resulting Config by value — nothing
downstream ever re-reads the file or a package-level variable.
*/
package config
