/*
Package types defines the entity model shared by every catalog metastore
package: the common Entity shape, the containment table encoded as
ParentTypeOf/IsGrantee, grant records, principal secrets, catalog paths,
and the Result[T] envelope every Metastore Manager operation returns in
place of a raw error.

Entities share one shape regardless of type: a (catalogId, id, parentId,
typeCode, subTypeCode, name) identity, a pair of monotonically increasing
version counters used for optimistic concurrency, and a properties map
plus an internal-properties map not visible to API callers. See the
containment table in pkg/manager for which types may be undroppable.
*/
package types
