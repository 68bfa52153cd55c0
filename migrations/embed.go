// Package migrations embeds the MySQL schema (golang-migrate format) and the
// ClickHouse DDL.
package migrations

import "embed"

//go:embed *.sql
var MySQL embed.FS

//go:embed clickhouse/*.sql
var ClickHouse embed.FS
