// Package memory implements the transactional write facade that sits
// between the extraction pipeline and per-user storage: validate a
// candidate memory, detect and resolve conflicts against the user's
// existing memories, then persist the outcome.
package memory
