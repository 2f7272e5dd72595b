package pm2

// Status is the normalized process state vocabulary. The type is deliberately
// open: a pm2 state missing from the translation table passes through
// unchanged so callers can still observe it.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
)

var statusTranslator = map[string]Status{
	"online":    StatusRunning,
	"stopping":  StatusStopped,
	"stopped":   StatusStopped,
	"launching": StatusStarting,
}

// TranslateStatus maps a raw pm2 status string into the normalized
// vocabulary. Unrecognized values are returned as-is.
func TranslateStatus(native string) Status {
	if s, ok := statusTranslator[native]; ok {
		return s
	}
	return Status(native)
}
