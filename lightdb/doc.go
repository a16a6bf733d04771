// Package lightdb is a CoAP client for a remote telemetry store.
//
// Two record namespaces exist: State (one latest value per path) and
// Stream (append-only time series). Write is fire-and-forget,
// Read sends Confirmable GET and waits for response with matching token.
//
// Client does not dial or authenticate, it consumes Channel.
// See lightdb/net for coap:// and coaps:// channels.
package lightdb
