// Package store provides the in-memory student record cache served by the REST API.
package store
