// Package realtime keeps a client's view of ephemeral chat state in step
// with the broker: who is online, whether the counterpart is typing, how
// far they have read, and the negotiation and meetup status of a
// conversation.
//
// Every coordinator depends only on pubsub.Port and on narrow backend
// interfaces. Each one is constructed inactive, opens channels when given
// a non-empty scoping id, and tears them down exactly once when the scope
// changes or Close is called. Coordinators never hold their own lock while
// calling into the port, because brokers may deliver events synchronously.
package realtime
