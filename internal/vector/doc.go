// Package vector reserves the embedding slot on a memory record without
// performing semantic search over it. Vector/semantic search is an explicit
// non-goal; this package exists so the embedding column has a documented,
// exercised (if inert) read/write path instead of silently dead schema.
package vector
