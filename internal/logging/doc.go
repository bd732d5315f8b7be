// Package logging configures structured slog output for lorerank: JSON
// lines written to a size-rotated file under ~/.lorerank/logs, optionally
// mirrored to stderr, plus a small viewer for reading those files back.
//
// The MCP server must never write logs to stdout, which carries the
// protocol stream; SetupServeMode logs to the file only.
package logging
