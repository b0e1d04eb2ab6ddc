// Package logging provides file-based logging with rotation for the
// retrieval service. Setup always writes JSON logs to a rotating file
// (by default under DefaultLogDir), mirrored to stderr when
// WriteToStderr is set; debug mode only lowers the level to debug.
package logging
