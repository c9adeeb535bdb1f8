// Package srt connects playback sessions to SRT transport. A caller dials a
// remote listener and exposes the connection as a storage source; a server
// accepts publishers and hands each one to the ingest registry.
package srt
