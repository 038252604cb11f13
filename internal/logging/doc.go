// Package logging provides file-based logging with rotation for
// indexsync. Every CLI command writes JSON logs to a rotating file
// under ~/.config/indexsync/logs/, also copied to stderr, for
// troubleshooting a reconcile or watch run after the fact.
//
// Without --debug the level is info; the --debug flag lowers it to
// debug.
package logging
