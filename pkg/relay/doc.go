// Package relay is the server side of the relay upload provider. It keeps
// the image host API key off the client: browsers post the file to the
// relay, the relay re-posts it upstream with the key and answers with the
// normalized envelope
//
//	{"success": true, "data": {"id": "...", "display_url": "...", ...}}
//	{"success": false, "error": {"code": "RATE_LIMIT", "message": "..."}}
//
// Status codes: 500 NO_API_KEY when no key is configured, 400 NO_FILE when
// nothing was attached, 413 when the request body is over the limit,
// 401/413/429 mirrored from the upstream host, 504 TIMEOUT, and 502
// NO_URL or UPLOAD_FAILED for any other upstream failure.
package relay
