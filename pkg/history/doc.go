// Package history persists completed call records and their user quality
// ratings.
//
// The call manager writes one Record per terminated session and reads them
// back for paginated history views. Two stores are provided: MemoryStore
// for tests and ephemeral clients, SQLiteStore for durable local history.
package history
