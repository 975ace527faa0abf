package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionApplied = "subscription.applied"
	ActionSubscriptionRemoved = "subscription.removed"

	// Event-stream actions
	ActionEventStale        = "event.stale"
	ActionEventDuplicate    = "event.duplicate"
	ActionEventUnrecognized = "event.unrecognized"
	ActionEventsPurged      = "events.purged"
	ActionWebhookReceived   = "webhook.received"

	// Access actions
	ActionEntitlementDenied = "entitlement.denied"

	// Provider actions
	ActionCheckoutStarted       = "checkout.started"
	ActionCancellationRequested = "cancellation.requested"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceEvent        = "event"
	ResourceEntitlement  = "entitlement"
	ResourceProvider     = "provider"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
