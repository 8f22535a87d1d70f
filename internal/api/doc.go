// Package api implements the HTTP handlers through which callers submit
// tasks to the execution pool. The handlers consume the pool purely
// through its public acquire/submit/await contract.
package api
