package events

// Event enumerates high-level topics inside the trader.
type Event string

const (
	EventSignalReceived Event = "signal.received"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderRejected  Event = "order.rejected"
	EventPositionChange Event = "position.change"
	EventEmergencyClose Event = "emergency.close"
	EventRiskAlert      Event = "risk.alert"
)
