package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/pkg/logger"
	"go.uber.org/zap"
)

// Subscriber logs every movement event and forwards the interesting ones.
type Subscriber struct {
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewSubscriber(n Notifier) *Subscriber {
	if n == nil {
		n = LogNotifier{}
	}
	return &Subscriber{notifier: n, log: logger.Named("notify")}
}

func (s *Subscriber) Handle(ctx context.Context, ev events.MovementEvent) error {
	s.log.Infow("Movement event",
		"type", ev.Type,
		"movement_id", ev.MovementID,
		"mission", ev.Mission,
		"status", ev.Status,
		"village_id", ev.SourceVillageID,
	)

	text, ok := Format(ev)
	if !ok {
		return nil
	}
	return s.notifier.Notify(ctx, text)
}

// Format renders battle outcomes, recalls and warnings. Other events return false.
func Format(ev events.MovementEvent) (string, bool) {
	var b strings.Builder
	switch ev.Type {
	case events.TypeResolved:
		if ev.AttackerWon == nil && len(ev.Warnings) == 0 {
			return "", false
		}
		fmt.Fprintf(&b, "<b>%s</b> from village %d", html.EscapeString(ev.Mission), ev.SourceVillageID)
		if ev.TargetVillageID != nil {
			fmt.Fprintf(&b, " to village %d", *ev.TargetVillageID)
		}
		if ev.AttackerWon != nil {
			if *ev.AttackerWon {
				b.WriteString(": attacker won")
			} else {
				b.WriteString(": attacker lost")
			}
		}
		if ev.ReportID != nil {
			fmt.Fprintf(&b, "\nreport %s", html.EscapeString(*ev.ReportID))
		}
	case events.TypeRecalled:
		fmt.Fprintf(&b, "Reinforcements from village %d recalled, back at %s",
			ev.SourceVillageID, ev.ArriveAt.UTC().Format("15:04:05"))
	default:
		if len(ev.Warnings) == 0 {
			return "", false
		}
		fmt.Fprintf(&b, "%s %s", html.EscapeString(string(ev.Type)), html.EscapeString(ev.MovementID))
	}
	if len(ev.Warnings) > 0 {
		fmt.Fprintf(&b, "\nwarnings: %s", html.EscapeString(strings.Join(ev.Warnings, ", ")))
	}
	return b.String(), true
}
