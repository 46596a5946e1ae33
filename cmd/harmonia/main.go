// Command harmonia runs the local-first memory service: a REST API
// that extracts, stores, and retrieves per-user memories from
// conversational messages.
package main

func main() {
	Execute()
}
