// Package main hosts the leaklook service entrypoint.
//
// Architecture overview:
//   - Ingestion: internal/engine reads staged raw documents from the
//     configured staging directory, dispatches each source to its parser
//     from internal/parser, and merges the extracted postings into the
//     canonical store. Merges are idempotent and serialized per group.
//   - Store: internal/store defines the four-partition abstraction (groups,
//     markets, posts, audit log) with in-memory and Postgres backends.
//   - HTTP API: internal/api exposes the public read endpoints and the
//     API-key protected admin mutations, plus health and /metrics handlers.
//   - Notifications: newly merged posts and locations are handed to the
//     configured notifier (structured log or Google Cloud Pub/Sub).
//   - Observability: progress events flow through a buffered hub into zap
//     logs and Prometheus counters. Event loss under backpressure is
//     preferred over blocking the ingestion path.
//
// Run locally: go run ./cmd/leaklook serve --config config.yaml, or rely on
// LEAKLOOK_* environment overrides.
package main

import "github.com/leaklook/leaklook/cmd"

func main() {
	cmd.Execute()
}
