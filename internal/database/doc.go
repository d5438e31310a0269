// Package database provides the PostgreSQL connection pool used for
// persisting access tokens between runs.
package database
