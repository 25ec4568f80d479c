// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlitedriver registers the pure-Go modernc.org/sqlite driver
// under the name "sqlite3" so callers can use database/sql without a CGO
// toolchain.
//
// Import this package for its side effects only:
//
//	import _ "github.com/courseware-labs/tally/internal/sqlitedriver"
package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}
