package model

// OperationKind is the type of a single mirroring step shown to the user.
type OperationKind int

// Operation kinds.
const (
	OpCopy OperationKind = iota
	OpUpdate
	OpMkdir
	OpDeleteFile
	OpDeleteDirectory
	OpPurge
	OpOrphan
	OpSkip
)

var operationLabels = [...]string{
	OpCopy:            "copy",
	OpUpdate:          "update",
	OpMkdir:           "mkdir",
	OpDeleteFile:      "delete",
	OpDeleteDirectory: "rmdir",
	OpPurge:           "purge",
	OpOrphan:          "orphan",
	OpSkip:            "skip",
}

func (k OperationKind) String() string {
	if k < 0 || int(k) >= len(operationLabels) {
		return "unknown"
	}

	return operationLabels[k]
}

// Operation describes one step of a run. Source and Destination are relative
// paths; either may be empty.
type Operation struct {
	Kind        OperationKind
	Source      string
	Destination string
	DryRun      bool
	Err         error
}
