package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// SubscriptionID records the local subscription identifier under the key
// "subscription_id".
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// CustomerID records the payment provider's customer reference under the
// key "customer_id".
func CustomerID(id string) slog.Attr {
	return slog.String("customer_id", id)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Component records the originating component under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Plan records a subscription plan name under the key "plan".
func Plan(name string) slog.Attr {
	return slog.String("plan", name)
}

// Credits records a credit amount under the key "credits".
func Credits(amount int64) slog.Attr {
	return slog.Int64("credits", amount)
}
