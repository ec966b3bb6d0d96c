/*
Package types defines the entities shared by every Agent Farm component:
the per-project runtime entities (Architect, Builder, UtilTerminal,
Annotation) recorded in the State Store, and the PortAllocation row kept in
the host-global Port Registry. Nothing in this package touches storage or
process lifecycle directly — it is the vocabulary the rest of the module
shares.
*/
package types
