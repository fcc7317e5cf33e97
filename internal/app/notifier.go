package app

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier logs events instead of publishing them. Used when no broker
// is configured; delivery stays a logged side-effect contract.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) BadgeGranted(_ context.Context, userID, badgeID string) {
	n.log.Info("badge granted", zap.String("user", userID), zap.String("badge", badgeID))
}

func (n *LogNotifier) CourseUpdated(_ context.Context, courseID string, fields []string) {
	n.log.Info("course updated", zap.String("course", courseID), zap.Strings("fields", fields))
}
