package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownTopic is returned when a topic name matches none of the known families.
var ErrUnknownTopic = errors.New("unknown topic")

const (
	TopicSystemAnnouncements = "system-announcements"
	TopicUserNotifications   = "user-notifications"

	StoreKindUpdates = "updates"

	storePrefix        = "store-"
	salesPrefix        = "sales-data-"
	businessTypePrefix = "business-type-"
)

var globalTopics = map[string]struct{}{
	TopicSystemAnnouncements: {},
	TopicUserNotifications:   {},
}

// TopicKind identifies the family a topic belongs to. The family alone decides
// which identities may subscribe.
type TopicKind int

const (
	TopicKindGlobal TopicKind = iota + 1
	TopicKindStore
	TopicKindSales
	TopicKindBusinessType
)

func (k TopicKind) String() string {
	switch k {
	case TopicKindGlobal:
		return "global"
	case TopicKindStore:
		return "store"
	case TopicKindSales:
		return "sales"
	case TopicKindBusinessType:
		return "business-type"
	default:
		return "unknown"
	}
}

// Topic is a parsed broadcast channel name. It is comparable and used directly
// as the subscription index key.
type Topic struct {
	Kind TopicKind
	// Name holds the global topic name or the sub-kind of a store topic.
	Name string
	// ID holds the store id (store and sales topics) or business type id.
	ID int64
}

// GlobalTopic builds one of the fixed, process-wide topics.
func GlobalTopic(name string) Topic {
	return Topic{Kind: TopicKindGlobal, Name: name}
}

// StoreTopic builds store-{id}-{kind}.
func StoreTopic(storeID int64, kind string) Topic {
	return Topic{Kind: TopicKindStore, ID: storeID, Name: kind}
}

// StoreUpdatesTopic builds store-{id}-updates.
func StoreUpdatesTopic(storeID int64) Topic {
	return StoreTopic(storeID, StoreKindUpdates)
}

// SalesTopic builds sales-data-{id}.
func SalesTopic(storeID int64) Topic {
	return Topic{Kind: TopicKindSales, ID: storeID}
}

// BusinessTypeTopic builds business-type-{id}.
func BusinessTypeTopic(businessTypeID int64) Topic {
	return Topic{Kind: TopicKindBusinessType, ID: businessTypeID}
}

// String renders the canonical wire name.
func (t Topic) String() string {
	switch t.Kind {
	case TopicKindGlobal:
		return t.Name
	case TopicKindStore:
		return storePrefix + strconv.FormatInt(t.ID, 10) + "-" + t.Name
	case TopicKindSales:
		return salesPrefix + strconv.FormatInt(t.ID, 10)
	case TopicKindBusinessType:
		return businessTypePrefix + strconv.FormatInt(t.ID, 10)
	default:
		return ""
	}
}

// IsZero reports whether the topic was never assigned.
func (t Topic) IsZero() bool {
	return t.Kind == 0
}

// ParseTopic converts a client supplied name into a Topic. Names are parsed
// once at the edge so the rest of the system never matches prefixes.
func ParseTopic(raw string) (Topic, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return Topic{}, fmt.Errorf("%w: empty name", ErrUnknownTopic)
	}
	if _, ok := globalTopics[name]; ok {
		return GlobalTopic(name), nil
	}

	switch {
	case strings.HasPrefix(name, salesPrefix):
		id, err := parseTopicID(name[len(salesPrefix):])
		if err != nil {
			return Topic{}, fmt.Errorf("%w: %q: %v", ErrUnknownTopic, raw, err)
		}
		return SalesTopic(id), nil
	case strings.HasPrefix(name, businessTypePrefix):
		id, err := parseTopicID(name[len(businessTypePrefix):])
		if err != nil {
			return Topic{}, fmt.Errorf("%w: %q: %v", ErrUnknownTopic, raw, err)
		}
		return BusinessTypeTopic(id), nil
	case strings.HasPrefix(name, storePrefix):
		rest := name[len(storePrefix):]
		idx := strings.Index(rest, "-")
		if idx <= 0 || idx == len(rest)-1 {
			return Topic{}, fmt.Errorf("%w: %q: expected store-{id}-{kind}", ErrUnknownTopic, raw)
		}
		id, err := parseTopicID(rest[:idx])
		if err != nil {
			return Topic{}, fmt.Errorf("%w: %q: %v", ErrUnknownTopic, raw, err)
		}
		kind := rest[idx+1:]
		if !validStoreKind(kind) {
			return Topic{}, fmt.Errorf("%w: %q: invalid store topic kind", ErrUnknownTopic, raw)
		}
		return StoreTopic(id, kind), nil
	}
	return Topic{}, fmt.Errorf("%w: %q", ErrUnknownTopic, raw)
}

func parseTopicID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return id, nil
}

func validStoreKind(kind string) bool {
	if kind == "" || strings.HasPrefix(kind, "-") || strings.HasSuffix(kind, "-") {
		return false
	}
	for _, r := range kind {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
