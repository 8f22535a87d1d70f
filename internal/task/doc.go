// Package task defines the pluggable task registry and the per-invocation
// execution context handed to task bodies. Tasks are addressed by a
// two-part type string ("category/subtype"); categories are registered
// independently, and a later registration for the same key overwrites the
// earlier one.
package task
