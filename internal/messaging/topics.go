package messaging

// Topic constants for the miner's event stream
const (
	// TopicMinerEvents carries every engine lifecycle event as a JSON
	// envelope, keyed by event type.
	TopicMinerEvents = "miner.events"
)
