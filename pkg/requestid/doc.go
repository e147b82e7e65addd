// Package requestid tags every relay request with a correlation ID and carries
// it to the upstream image host and into log records.
//
// Middleware reuses a well-formed incoming X-Request-ID header or generates a
// UUIDv4, stores it in the request context and echoes it in the response.
// Outbound calls copy it back onto their own headers with SetHeader, and
// LoggerExtractor adds it to every record logged with that context:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
