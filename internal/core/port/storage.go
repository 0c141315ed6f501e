package port

// Storage keys shared by the auth and presence layers.
const (
	KeyAuthToken = "authenticationToken"
	KeyUserState = "userState"
)

// StateStore is a small string key/value store. Two instances back the
// client: a durable one that survives restarts and a session-scoped one that
// does not.
type StateStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}
