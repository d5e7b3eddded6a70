package domain

// MemberStatus is one other-member entry in a group presence aggregate.
type MemberStatus struct {
	EmployeeID string
	Name       string
	Online     bool
}

// RoomPresence summarizes which other members of a group room are
// online, from the point of view of one subject. Both counts exclude
// the subject, never the members being looked at.
type RoomPresence struct {
	Members     map[string]MemberStatus
	OnlineCount int
	TotalCount  int
}

// BuildRoomPresence computes the aggregate for viewerID over the given
// member records. Records for the viewer are skipped.
func BuildRoomPresence(viewerID string, members []Identity) RoomPresence {
	agg := RoomPresence{Members: make(map[string]MemberStatus)}
	for _, m := range members {
		if m.EmployeeID == viewerID {
			continue
		}
		agg.Members[m.EmployeeID] = MemberStatus{
			EmployeeID: m.EmployeeID,
			Name:       m.Name,
			Online:     m.Online,
		}
		agg.TotalCount++
		if m.Online {
			agg.OnlineCount++
		}
	}
	return agg
}
