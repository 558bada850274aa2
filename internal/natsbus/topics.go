package natsbus

import "fmt"

// Topic patterns for dashboard events. Every event lands under
// events.<component>.<what> so the web hub can forward events.> as one
// stream.

func TopicVault(event string) string {
	return fmt.Sprintf("events.vault.%s", event)
}

func TopicGate(event string) string {
	return fmt.Sprintf("events.gate.%s", event)
}

func TopicLockdown(event string) string {
	return fmt.Sprintf("events.lockdown.%s", event)
}

func TopicScratchpad(event string) string {
	return fmt.Sprintf("events.scratchpad.%s", event)
}

func TopicCue(cue string) string {
	return fmt.Sprintf("events.cue.%s", cue)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsVault    = "events.vault.*"
	TopicEventsLockdown = "events.lockdown.*"
)
