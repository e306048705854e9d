/*
Package manager implements the metastore manager: the component that
turns catalog, namespace, table, principal and grant operations into
persisted, version-checked writes against a storage backend.

# Two strategies, one contract

MetastoreManager is a single interface with two implementations that
differ only in how they get consistency from the backend:

	TransactionalManager wraps each operation's steps in one call to
	storage.TransactionalPersistence.RunInTransaction (or
	RunInReadTransaction for reads), so a multi-step operation either
	commits in full or not at all.

	AtomicManager has no transaction to lean on. Its backend only
	guarantees that a single WriteEntity call is compare-and-swap safe.
	Multi-step operations are applied piecewise, in a fixed order, with
	each step individually idempotent: a retry after a partial failure
	resumes rather than double-applies. Steps that lose their CAS race
	are retried up to a bounded limit before the operation reports
	TARGET_ENTITY_CONCURRENTLY_MODIFIED.

Both strategies share the same operation bodies, defined in ops.go and
bootstrap.go as free functions over storage.BasePersistence. The two
manager types differ only in what they wrap those functions with.

New picks a strategy from the concrete backend handed to it:

	mgr := manager.New(backend, manager.Deps{
		Secrets:            secretsManager,
		StorageIntegration: storageIntegration,
	})

# Results

Every operation returns a types.Result[T] rather than a plain (T, error)
pair, mirroring the catalog API's own error envelope. statusForError
classifies a returned error into the Status a caller should report,
checking for a *resolver.ResolveError, a not-found sentinel, a
concurrency conflict, or an already-exists conflict before falling back
to StatusUnexpectedErrorSignaled.

# Bootstrap and backfill

bootstrapCore creates the realm's required closure, ROOT, the root
PRINCIPAL, the service_admin PRINCIPAL_ROLE, and their grants, or
confirms it already exists. loadResolvedEntityByNameCore falls back to
the same sequence (backfillRoot) when asked to resolve ROOT in a realm
that predates an explicit bootstrap call.
*/
package manager
