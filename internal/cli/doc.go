// Package cli implements the operational support behind the harmonia
// command: database initialization and environment validation, kept
// separate from cmd/harmonia so it can be unit tested without Cobra.
package cli
