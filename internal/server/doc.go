// Package server implements the REST API over the record store and a UDP
// responder that speaks the server side of the mark-list protocol.
package server
