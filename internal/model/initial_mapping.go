package model

// InitialMapping records the Hub id of a signal's first delivered OVERLIMIT event.
// There is at most one per signal.
type InitialMapping struct {
	SignalID   int64  `json:"signal_id"`
	HubEventID string `json:"ceh_initial_event_id"`
}
