// Package httputil fetches remote images for the pipeline.
//
// # Overview
//
// Inputs given as http:// or https:// URLs are downloaded through a [Client]
// instead of being read from disk:
//
//   - [Client]: GET with default headers, a size limit and status mapping
//   - [Retry]: Automatic retry with exponential backoff
//
// # Retry
//
// [Client.Fetch] retries transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Other statuses fail immediately; 404 maps to NOT_FOUND and everything
// else to NETWORK_ERROR.
//
// # Configuration
//
// Default settings:
//
//   - Timeout: 30 seconds per request
//   - Max retries: 3
//   - Base backoff: 1 second
//   - Max body size: 64 MiB
package httputil
