// Package metrics defines the Prometheus collectors for fetches, the record
// store, the development responder and the HTTP API.
package metrics
