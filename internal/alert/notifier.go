package alert

import "netgraph-guard/internal/model"

// Notifier delivers an emitted alert to an external channel (log, Telegram,
// Redis, ...). Notifier failures are logged and never propagate into the
// analysis loop.
type Notifier interface {
	SendAlert(alert model.Alert) error
}
