// Package internal contains the core implementation packages for etch.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Config file loading, decoding and validation
//   - resolver: Static, environment and command context sources
//   - extension: Starlark extension functions exposed to templates
//   - engine: The template environment, filters and helper globals
//   - walker: Template discovery with exclude and ignore-file rules
//   - lockfile: Content hashes of rendered outputs between runs
//   - render: The run pipeline and watch mode
//   - watcher: File system monitoring with debouncing
//   - errors: Typed errors with codes and path context
//   - logging: Structured logging on top of log/slog
//
// # Run Pipeline
//
// A run validates the root, loads the config, runs setup commands, resolves
// the context, discovers templates, renders each one and finally syncs the
// lockfile. Outputs whose content did not change are never rewritten.
//
// For detailed documentation, see the individual package documentation.
package internal
