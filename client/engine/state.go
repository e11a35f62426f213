package engine

// State names what the session is waiting for
type State int

const (
	Idle State = iota
	AwaitingIdentityResponse
	AwaitingKeyResponse
	SendingFile
	AwaitingFileValidation
	Done
	Fatal
)

var stateNames = [...]string{
	Idle:                     "idle",
	AwaitingIdentityResponse: "awaiting_identity_response",
	AwaitingKeyResponse:      "awaiting_key_response",
	SendingFile:              "sending_file",
	AwaitingFileValidation:   "awaiting_file_validation",
	Done:                     "done",
	Fatal:                    "fatal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further request will be sent
func (s State) Terminal() bool {
	return s == Done || s == Fatal
}
