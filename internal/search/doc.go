// Package search implements full-text search over one user's memories:
// query parsing, FTS5 execution, a custom BM25 re-ranking pass on top
// of the database's native rank, snippeting, pagination, plain
// listing, and export to JSON/CSV/Markdown/text.
package search
