// Package domain contains the core value types of the closed discovery loop:
// experiment variables, the immutable state snapshot threaded through the
// loop, the delta that each step returns, and the lifecycle events emitted
// while a session runs.
//
// Nothing in this package performs IO. Adapters and the runtime depend on
// domain, never the other way around.
package domain
