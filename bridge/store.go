package bridge

// StatusStore is the durable persistence of user ops and their lifecycle state
type StatusStore interface {
	// Insert assigns the next id to the user op, persists it with the Pending status and returns the id.
	// Ids are strictly increasing, start at 1 and survive restarts.
	Insert(op *UserOp) (uint64, error)
	// Get returns the current status of the user op
	Get(id uint64) (UserOpStatus, error)
	// GetUserOp returns the persisted user op
	GetUserOp(id uint64) (*UserOp, error)
	// Transition writes next if the current status allows it and reports whether it was written
	Transition(id uint64, next UserOpStatus) (bool, error)
	// Iterate visits every persisted user op in ascending id order
	Iterate(fn func(op *UserOp, status UserOpStatus) error) error
	// Close closes the underlying database
	Close() error
}

// StoreBackend identifies the database engine behind the status store
type StoreBackend string

const (
	BoltBackend    StoreBackend = "bolt"
	LevelDBBackend StoreBackend = "leveldb"
)

// NewStatusStore opens the status store with the requested backend at path
func NewStatusStore(backend StoreBackend, path string) (StatusStore, error) {
	switch backend {
	case BoltBackend, "":
		return NewBoltStatusStore(path)
	case LevelDBBackend:
		return NewLevelDBStatusStore(path)
	default:
		return nil, &unknownBackendError{backend: backend}
	}
}

type unknownBackendError struct {
	backend StoreBackend
}

func (e *unknownBackendError) Error() string {
	return "unknown status store backend: " + string(e.backend)
}
