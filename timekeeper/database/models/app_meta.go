package models

import "github.com/uptrace/bun"

// Well-known app_meta keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaMarketIndex   = "market_index_percent"
)

// AppMeta is a key/value row for schema versioning and small global
// settings like the store market index.
type AppMeta struct {
	bun.BaseModel `bun:"table:app_meta,alias:am"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}
