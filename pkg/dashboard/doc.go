/*
Package dashboard is the Dashboard Server (§4.6): the single entry point for
the user's browser inside one project. It serves the UI bundle, a read-only
state snapshot, tab-lifecycle commands, reverse-proxies every child
terminal through pkg/proxy, and enforces Host/Origin and path-validation
security gates. Routing follows aristath's handlers/routes.go style: one
chi.Router per concern, registered from a constructor that closes over its
dependencies rather than reading package globals.
*/
package dashboard
