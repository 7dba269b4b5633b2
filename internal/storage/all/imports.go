// Package all registers the built-in storage backends with the storage
// package. Import it for side effects:
//
//	import _ "ingest/internal/storage/all"
//
// after which storage.New accepts the kinds "postgres" and "sqlite", and
// storage.EnsureTable can create tables for both. Binaries that need only one
// backend can import that backend package directly instead.
package all

import (
	_ "ingest/internal/storage/postgres"
	_ "ingest/internal/storage/sqlite"
)
