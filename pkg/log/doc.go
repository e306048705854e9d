/*
Package log provides structured logging for the metastore using zerolog.

The global Logger is initialized once via Init and from then on is safe for
concurrent use. Component and entity-scoped child loggers are created with
the With* helpers rather than by repeating field names at every call site.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	opLog := log.WithOperation("createCatalog")
	opLog.Info().Str("catalog_id", id).Msg("catalog created")
*/
package log
