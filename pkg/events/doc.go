/*
Package events implements an in-process publish/subscribe broker for entity
lifecycle notifications emitted by pkg/manager.

Publish enqueues onto the broker's buffered queue and blocks only while
that queue is full (or until the broker is stopped). Delivery to
subscribers is best effort: a subscriber whose buffer is full silently
misses the event rather than stalling the broker.
This package has no persistence and no replay; it exists for test
observability and as an extension point for future audit subscribers, not
as a durability guarantee.
*/
package events
