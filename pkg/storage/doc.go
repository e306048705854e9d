/*
Package storage defines the persistence backend contract for the catalog
metastore and ships three implementations of it.

BasePersistence groups the backend's read/write primitives into the
logical "slices" the metastore manager addresses independently: entities,
the active-name index, change-tracking versions, grant records,
principal secrets, and storage integrations. Two refinements sit on top
of it:

  - TransactionalPersistence exposes RunInTransaction / RunInReadTransaction,
    for backends (BoltPersistence, RaftPersistence) that can wrap a
    sequence of slice calls in one backend-managed transaction.
  - AtomicPersistence requires every slice operation to be individually
    atomic: WriteEntity signals *EntityAlreadyExistsError or
    *RetryOnConcurrencyError instead of silently overwriting
    (MemoryAtomicPersistence).

pkg/manager selects its strategy — TransactionalManager or AtomicManager —
based on which refinement the configured backend satisfies.
*/
package storage
