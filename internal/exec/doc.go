// Package exec implements the concurrent task execution substrate: a
// bounded pool of execution units with fair queued acquisition, the
// per-unit request/response protocol (start, optional progress, exactly
// one terminal result or error), and the per-request Target that bridges
// the exchange into awaiting callers.
package exec
