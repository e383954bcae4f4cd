package core

import "fmt"

// Kind is a stable, machine-checkable error code, independent of the
// human-readable message wrapped around it with fmt.Errorf("...: %w", err).
type Kind string

const (
	// ManifestError codes.
	ManifestMismatch     Kind = "MANIFEST_MISMATCH"
	ManifestMissingFile  Kind = "MANIFEST_MISSING_FILE"
	ManifestIncomplete   Kind = "MANIFEST_INCOMPLETE"

	// MigrationError codes.
	MigrationChecksumMismatch Kind = "MIGRATION_CHECKSUM_MISMATCH"
	MigrationApplyError       Kind = "MIGRATION_APPLY_ERROR"

	// ResolutionError codes.
	UnresolvedPlayer     Kind = "UNRESOLVED_PLAYER"
	UnresolvedTeam       Kind = "UNRESOLVED_TEAM"
	UnresolvedSeason     Kind = "UNRESOLVED_SEASON"
	AmbiguousResolution  Kind = "AMBIGUOUS_RESOLUTION"

	// LoadError codes.
	LoadCountMismatch    Kind = "LOAD_COUNT_MISMATCH"
	FKViolation          Kind = "FK_VIOLATION"
	CheckViolation       Kind = "CHECK_VIOLATION"
	TypeCoercionError    Kind = "TYPE_COERCION_ERROR"
	ChunkCheckpointFailed Kind = "CHUNK_CHECKPOINT_FAILED"

	// ValidationError codes.
	RowCountMismatch        Kind = "ROW_COUNT_MISMATCH"
	FKCoverageFail          Kind = "FK_COVERAGE_FAIL"
	DomainRuleViolation     Kind = "DOMAIN_RULE_VIOLATION"
	CrossTableInconsistency Kind = "CROSS_TABLE_INCONSISTENCY"

	// RegistryError codes.
	RegistryInvalid  Kind = "REGISTRY_INVALID"
	MetricUnknown    Kind = "METRIC_UNKNOWN"
	DependencyCycle  Kind = "DEPENDENCY_CYCLE"

	// QueryError codes.
	InvalidFilterShape Kind = "INVALID_FILTER_SHAPE"
	UnsatisfiableQuery Kind = "UNSATISFIABLE_QUERY"
	QueryTimeout       Kind = "QUERY_TIMEOUT"
	ExecutionError     Kind = "EXECUTION_ERROR"

	// SavedQueryError codes.
	SavedQueryNotFound   Kind = "SAVED_QUERY_NOT_FOUND"
	SavedQueryConflict   Kind = "SAVED_QUERY_CONFLICT"
	SavedQueryStoreError Kind = "SAVED_QUERY_STORE_ERROR"

	// OrchestratorError codes: failures in the run ledger itself, distinct
	// from the ManifestError/LoadError/ValidationError a run step raises.
	RunBookkeepingFailed Kind = "RUN_BOOKKEEPING_FAILED"
	RunCancelled         Kind = "RUN_CANCELLED"
)

// Error is the single typed error value used throughout the pipeline. It
// carries a component tag (the taxonomy group), a stable Kind code, and an
// optional wrapped cause, following the teacher's NotFoundError/IsNotFound
// shape generalized to the full taxonomy in one struct rather than one
// struct per component.
type Error struct {
	Component string // "manifest", "migration", "resolve", "load", "validate", "registry", "query", "savedquery"
	Kind      Kind
	Detail    string
	Cause     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Component, e.Detail, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, core.Err(SomeKind)) match regardless of detail/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a component error with a Kind and detail, optionally wrapping cause.
func New(component string, kind Kind, detail string, cause error) error {
	return &Error{Component: component, Kind: kind, Detail: detail, Cause: cause}
}

// Err builds a bare sentinel of a given Kind, for use with errors.Is.
func Err(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// NotFoundError represents a resource that could not be found by a simple
// lookup (not part of the typed taxonomy above — used by small helper
// accessors like the ID Resolution Service's direct map lookups).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*NotFoundError)
	return ok
}
