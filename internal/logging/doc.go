// Package logging provides concrete implementations of the redismcp.Logger
// interface. All output goes to stderr; stdout is reserved for the MCP stdio
// transport.
package logging
