// Package requestid correlates outgoing API calls with log records.
//
// Every request sent by the client carries an X-Request-ID header. The id
// comes from the context when the caller set one, so a single user action
// that fans out into several calls shares one id:
//
//	ctx, id := requestid.Ensure(ctx)
//	cart.Add(ctx, item) // every call made for this add sends id
//
// Stamp applies the header to an *http.Request and LoggerExtractor plugs the
// same id into the logger's context extractors, so the request log line and
// the server's access log can be joined on request_id.
package requestid
