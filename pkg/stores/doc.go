// Package stores keeps a history of benchmark runs in SQLite. Each run
// records its throughput and the copy strategies the cloner compiled, so
// classification changes can be compared across runs.
package stores
