// Package model defines shared data types for the in-play odds engine.
//
// Conventions:
//   - Prices, sizes, handicaps and volumes: shopspring decimal (exact compare)
//   - Feed ids: ID, decoded from either a JSON string or a JSON number
//   - Optional update fields: pointers (nil = absent from the update)
//   - Ladders: nil slice = absent from the update, non-nil (even empty) = present
package model
