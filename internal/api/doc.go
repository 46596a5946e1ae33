// Package api exposes the memory pipeline over HTTP using Gin.
//
// The surface is deliberately small: store a message for extraction,
// search and list a user's memories, export them, and fetch or delete
// a single memory by id. Every response is wrapped in the same
// envelope (success flag, timestamp, data or error), and every
// request passes through API-key auth, a per-category rate limiter,
// and a request body size cap before reaching a handler.
package api
