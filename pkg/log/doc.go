/*
Package log provides structured logging for Agent Farm using zerolog.

A single global Logger is initialized once via Init, then component-scoped
child loggers are threaded explicitly through constructors:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Str("project", projectPath).Msg("starting")

Console output is the default (human-readable, for an interactive CLI);
--log-json switches to structured JSON for log aggregation. Never read the
global Logger from inside a leaf package's logic — accept a
zerolog.Logger (or a log.Config) in the constructor instead.
*/
package log
