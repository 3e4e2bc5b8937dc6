// Package ports defines the driven-side contracts of the loop: the three
// scientist roles (experimentalist, experiment runner, theorist), the generic
// Step abstraction the runtime executes, and the StateStore used for durable
// sessions. Adapters under pkg/adapters implement these interfaces.
package ports
