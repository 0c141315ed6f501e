package domain

// UserState is a user's presence status as announced to other clients.
type UserState string

const (
	StateOnline  UserState = "ONLINE"
	StateAway    UserState = "AWAY"
	StateBusy    UserState = "BUSY"
	StateOffline UserState = "OFFLINE"
)

// User is the minimal user reference carried inside call and message
// envelopes.
type User struct {
	ID    *int64 `json:"id"`
	Login string `json:"login"`
}

// UserSocket is one remote user's presence record.
type UserSocket struct {
	Username string    `json:"username"`
	State    UserState `json:"state"`
}

// StateAxis selects which presentation axis a state class is built for.
type StateAxis string

const (
	AxisBackground StateAxis = "bg"
	AxisText       StateAxis = "text"
)

// StateClass maps a presence state to its presentation category on the given
// axis. Unknown states fall back to secondary.
func StateClass(axis StateAxis, state UserState) string {
	category := "secondary"
	switch state {
	case StateOnline:
		category = "success"
	case StateOffline:
		category = "secondary"
	case StateBusy:
		category = "danger"
	case StateAway:
		category = "warning"
	}
	return string(axis) + "-" + category
}
