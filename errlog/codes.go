package errlog

// Error codes used as entry types across the module. Recovery components log
// these; callers filter on them via Entries.
const (
	TypeSnapshotFailed             = "SNAPSHOT_FAILED"
	TypeRollbackNoSnapshot         = "ROLLBACK_NO_SNAPSHOT"
	TypeRollbackDisabled           = "ROLLBACK_DISABLED"
	TypeRollbackMaxAttempts        = "ROLLBACK_MAX_ATTEMPTS"
	TypeRecreationContainerMissing = "RECREATION_CONTAINER_MISSING"
	TypeUpdateFailed               = "UPDATE_FAILED"
	TypeCoordinationTimeout        = "COORDINATION_TIMEOUT"
	TypeGlobalLockActive           = "GLOBAL_LOCK_ACTIVE"
)
