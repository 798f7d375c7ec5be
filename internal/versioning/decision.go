package versioning

// Action is the outcome of an update check for one device.
type Action int

const (
	ActionNoUpdate Action = iota
	ActionOptionalUpdate
	ActionMandatoryUpdate
	ActionRollback
	ActionRollbackToBinary
)

var actionNames = map[Action]string{
	ActionNoUpdate:         "no_update",
	ActionOptionalUpdate:   "optional_update",
	ActionMandatoryUpdate:  "mandatory_update",
	ActionRollback:         "rollback",
	ActionRollbackToBinary: "rollback_to_binary",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// IsRollback reports whether the action moves the device to an older release.
func (a Action) IsRollback() bool {
	return a == ActionRollback || a == ActionRollbackToBinary
}

// Decision is the result of Engine.Decide.
type Decision struct {
	Action    Action
	Target    Release
	Mandatory bool
}
