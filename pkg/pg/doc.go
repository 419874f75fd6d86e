// Package pg bootstraps PostgreSQL connectivity for the application.
//
// It provides pgxpool construction with connection retry, goose migration
// execution routed through slog, health checks, and helpers that classify
// common PostgreSQL errors (not found, unique violation) so the rest of
// the codebase never inspects SQLSTATE codes directly.
package pg
