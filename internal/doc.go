// Package internal holds the implementation packages behind the vellum CLI
// and library surface. Nothing here is importable from outside the module;
// hosts integrate through the provider markup and the HTTP surface instead.
//
// # Packages
//
//   - types: shared template, asset, and event types
//   - digest: BLAKE3 content digests for tokens and payload identifiers
//   - errors: coded errors with predicates shared across packages
//   - logging: structured logging on log/slog
//   - config: configuration loading, defaults, and validation
//   - scanner: app discovery and extends-pragma extraction
//   - registry: the template registry and its change events
//   - lineage: inheritance chain resolution over the registry
//   - assets: asset location by convention and version token caching
//   - jscontext: server-to-client context payloads and their registry
//   - provider: link set building and HTML markup emission
//   - metrics: Prometheus collectors for the preview server
//   - watcher: file system monitoring with debouncing
//   - server: the preview HTTP server, WebSocket reload, and middleware
//   - version: build metadata
//
// # How they fit together
//
// The scanner populates the registry; lineage walks it. The provider
// composes lineage, assets, and jscontext into per-request link sets and
// payloads. The server coordinates all of it and the watcher feeds it
// change events. The cmd package wires the same pipeline for offline
// commands.
package internal
