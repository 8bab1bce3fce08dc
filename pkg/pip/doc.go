// Package pip provides the Policy Information Point: entity data providers
// that resolve Cedar entities (attributes and parents) by type and id.
//
// Two providers are available:
//
//   - MemoryPIP indexes a preloaded entity list, typically cedarentities.json.
//   - StorePIP fetches from a KeyedStore (SQLite, Redis or DynamoDB) using
//     chunked, concurrent multi-gets of at most MaxBatchKeys keys per call.
//
// Both resolve parents with the same frontier loop: requested ids are fetched,
// then the parents discovered in that round, and so on until no new ids
// appear. Unknown ids are omitted from the result without error. A canonical
// key (see EntityKey) never appears twice in a result.
//
// # Thread Safety
//
// Providers are read-only after construction and safe for concurrent use.
package pip
