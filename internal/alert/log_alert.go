package alert

import (
	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes alerts to the engine log.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log alert notifier.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendAlert implements Notifier.
func (ln *LogNotifier) SendAlert(alert model.Alert) error {
	ln.logger.WithFields(logrus.Fields{
		"type":     alert.Type,
		"severity": alert.Severity,
		"target":   alert.TargetID,
		"score":    alert.Score,
	}).Warn(alert.Message)
	return nil
}
