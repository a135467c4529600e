package shared

import (
	"net/http"
	"strconv"
)

// Actor identifies the admin user performing a command. It is passed
// explicitly into every service method that writes, so audit attribution
// never depends on ambient request state.
type Actor struct {
	ID   int64
	Name string
}

// System is used by background jobs that act without a logged-in user.
var System = Actor{ID: 0, Name: "system"}

// ActorFromRequest reads the actor identity forwarded by the authenticating
// gateway. Authentication itself happens upstream; handlers only relay the
// identity into service commands.
func ActorFromRequest(r *http.Request) Actor {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-Id"), 10, 64)
	return Actor{
		ID:   id,
		Name: r.Header.Get("X-Actor-Name"),
	}
}
