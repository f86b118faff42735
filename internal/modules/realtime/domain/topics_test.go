package domain

import (
	"errors"
	"testing"
)

func TestParseTopicRoundTrip(t *testing.T) {
	cases := map[string]Topic{
		"system-announcements":  GlobalTopic(TopicSystemAnnouncements),
		" User-Notifications ":  GlobalTopic(TopicUserNotifications),
		"store-7-updates":       StoreUpdatesTopic(7),
		"store-12-shift-alerts": StoreTopic(12, "shift-alerts"),
		"sales-data-7":          SalesTopic(7),
		"business-type-3":       BusinessTypeTopic(3),
	}

	for input, expected := range cases {
		got, err := ParseTopic(input)
		if err != nil {
			t.Fatalf("ParseTopic(%q) unexpected error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("ParseTopic(%q) expected %#v got %#v", input, expected, got)
		}
	}
}

func TestTopicStringIsCanonical(t *testing.T) {
	cases := map[Topic]string{
		GlobalTopic(TopicSystemAnnouncements): "system-announcements",
		StoreUpdatesTopic(7):                  "store-7-updates",
		SalesTopic(42):                        "sales-data-42",
		BusinessTypeTopic(5):                  "business-type-5",
		{}:                                    "",
	}
	for topic, expected := range cases {
		if got := topic.String(); got != expected {
			t.Fatalf("String() expected %q got %q", expected, got)
		}
	}
}

func TestParseTopicRejectsMalformedNames(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"random",
		"system-announcement",
		"store-",
		"store-7",
		"store-7-",
		"store--updates",
		"store-abc-updates",
		"store-0-updates",
		"store-7-Updates!",
		"sales-data-",
		"sales-data-x",
		"sales-data--1",
		"business-type-",
		"business-type-0",
	}
	for _, input := range inputs {
		if _, err := ParseTopic(input); !errors.Is(err, ErrUnknownTopic) {
			t.Fatalf("ParseTopic(%q) expected ErrUnknownTopic got %v", input, err)
		}
	}
}
