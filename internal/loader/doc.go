// Package loader connects the mark-list client to the record store.
// It degrades to stale or empty data when the source is unreachable and can
// refresh the records on a fixed interval.
package loader
