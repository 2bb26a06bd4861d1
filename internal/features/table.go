package features

import (
	"net/http"

	"github.com/keithlinneman/goals-api/internal/dispatch"
)

// Group names. They key Groups and label logs, spans and metrics.
const (
	GroupDocs           = "docs"
	GroupGoals          = "goals"
	GroupRooms          = "rooms"
	GroupUsers          = "users"
	GroupPing           = "ping"
	GroupSidebar        = "sidebar"
	GroupInfo           = "info"
	GroupVision         = "vision"
	GroupMission        = "mission"
	GroupCentrifugotest = "centrifugotest"
	GroupAuth           = "auth"
)

// layout is the public mount table in registration order.
var layout = []struct {
	prefix  string
	name    string
	limited bool
}{
	{"/api/v1/docs", GroupDocs, false},
	{"/api/v1/goals", GroupGoals, false},
	{"/api/v1/rooms", GroupRooms, true},
	{"/api/v1/users", GroupUsers, true},
	{"/ping", GroupPing, true},
	{"/api/v1/sidebar", GroupSidebar, true},
	{"/info", GroupInfo, true},
	{"/api/v1/vision", GroupVision, false},
	{"/api/v1/mission", GroupMission, false},
	{"/api/centrifugotest", GroupCentrifugotest, false},
	{"/api/v1/auth", GroupAuth, false},
}

// Groups maps a group name to its handler.
type Groups map[string]http.Handler

// Table binds groups onto the fixed layout. Names missing from groups
// get Unavailable.
func Table(groups Groups) dispatch.Table {
	t := make(dispatch.Table, 0, len(layout))
	for _, l := range layout {
		h := groups[l.name]
		if h == nil {
			h = Unavailable(l.name)
		}
		t = append(t, dispatch.Mount{
			Prefix:      l.prefix,
			RateLimited: l.limited,
			Name:        l.name,
			Group:       h,
		})
	}
	return t
}

// Names lists the group names in table order.
func Names() []string {
	out := make([]string, len(layout))
	for i, l := range layout {
		out[i] = l.name
	}
	return out
}
