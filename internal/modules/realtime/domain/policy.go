package domain

import "strings"

// CanSubscribe decides whether identity may join topic. It is pure: the same
// inputs always produce the same answer and nothing is mutated.
func CanSubscribe(identity Identity, topic Topic) bool {
	if strings.TrimSpace(identity.UserID) == "" {
		return false
	}
	switch topic.Kind {
	case TopicKindGlobal:
		_, ok := globalTopics[topic.Name]
		return ok
	case TopicKindStore:
		return identity.StoreID != 0 && topic.ID == identity.StoreID
	case TopicKindSales:
		if identity.Role == RoleSuperAdmin {
			return true
		}
		return identity.Role.Known() && identity.StoreID != 0 && topic.ID == identity.StoreID
	case TopicKindBusinessType:
		return identity.Role.AtLeast(RoleAdmin)
	default:
		return false
	}
}
