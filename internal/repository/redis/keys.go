package redis

import "fmt"

const ns = "tixledger:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventListings(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:listings", ns, eventID)
}

func KeyAllEvents() string {
	return ns + ":events:all"
}

func KeyIdemBuy(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:buy:%d:%s", ns, eventID, idemKey)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
