// Package logger builds the *slog.Logger shared by the media services.
//
// New takes functional options for level, format, output, static attributes
// and context extractors. Extractors run on every record, which is how the
// relay attaches request IDs:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "mediarelay"),
//		logger.WithLevelName(cfg.Level),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//
// Attribute helpers (Provider, Path, Size, Kind, Error) keep key names
// consistent across packages. Error returns an empty Attr for a nil error, so
// callers can log it without a nil check.
package logger
