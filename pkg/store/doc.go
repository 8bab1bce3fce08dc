// Package store provides SQLite-based persistence for the PDP.
//
// The store manages two tables:
//
//   - entities: Cedar entities keyed by (type, id) with the canonical entity
//     key as a unique secondary key. Store implements pip.KeyedStore so a
//     pip.StorePIP can resolve entities from it.
//   - audit_log: an append-only record of authorization decisions.
//
// Entities are stored in the Cedar JSON entity format, so anything accepted
// by cedarentities.json round-trips unchanged.
//
// # Usage
//
// Open a store with [Open] and close it when done:
//
//	db, err := store.Open("entities.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// # Thread Safety
//
// The store is safe for concurrent use. SQLite WAL mode enables readers and
// writers to operate simultaneously.
package store
