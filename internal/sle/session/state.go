package session

import (
	"fmt"
	"strings"
)

// AuthLevel selects which operations carry ISP1 credentials.
type AuthLevel int

const (
	AuthNone AuthLevel = iota
	AuthAll
)

func (a AuthLevel) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthAll:
		return "all"
	}
	return fmt.Sprintf("authLevel(%d)", int(a))
}

// ParseAuthLevel accepts "none" and "all".
func ParseAuthLevel(s string) (AuthLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AuthNone, nil
	case "all":
		return AuthAll, nil
	}
	return AuthNone, fmt.Errorf("unknown auth level %q", s)
}

// State is the bind state of an RCF association as seen by the user.
type State int

const (
	StateUnbound State = iota
	StateBindPending
	StateReady
	StateStartPending
	StateActive
	StateStopPending
	StateUnbindPending
)

var stateNames = [...]string{
	StateUnbound:       "unbound",
	StateBindPending:   "bind-pending",
	StateReady:         "ready",
	StateStartPending:  "start-pending",
	StateActive:        "active",
	StateStopPending:   "stop-pending",
	StateUnbindPending: "unbind-pending",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}
