package models

import "github.com/uptrace/bun"

// ReservePoolID is the primary key of the singleton reserve row.
const ReservePoolID = 1

// ReservePool is the system-owned sink/source account. Exactly one row
// exists (id = 1). It absorbs depletion deductions and funds
// administrative distributions.
type ReservePool struct {
	bun.BaseModel `bun:"table:time_reserves,alias:tr"`

	ID           int64 `bun:"id,pk"`
	TotalSeconds int64 `bun:"total_seconds,notnull,default:0"`
}
