// Package cmd implements the command-line interface of EntityLocker. It
// provides a hierarchical command structure around the entitylock library.
//
// The package is organized into several subpackages:
//
//   - bench: Scenarios that exercise the locker (counter, reentrant,
//     deadlock, timeout, transfer) and verify their invariants
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable ENTITYLOCKER_<FLAG>
// (e.g. ENTITYLOCKER_LOG_LEVEL=debug), also from .env and .env.local files.
//
// See entitylocker -help for a list of all commands.
package cmd
