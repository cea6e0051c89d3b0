package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
)

// MaxDelay bounds every delay node.
const MaxDelay = 5 * time.Minute

type Unit string

const (
	UnitMilliseconds Unit = "ms"
	UnitSeconds      Unit = "seconds"
	UnitMinutes      Unit = "minutes"
	UnitHours        Unit = "hours"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type DelayNode struct {
	id          string
	requestedMs float64
	actual      time.Duration
	sleep       SleepFunc
}

func NewDelayNode(id string, config map[string]any, sleepFn SleepFunc) (*DelayNode, error) {
	duration, ok := nodes.Number(config, "duration")
	if !ok {
		return nil, errors.New("missing required field 'duration'")
	}

	if math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("duration must be a finite number, got %v", duration)
	}

	if duration < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %v", duration)
	}

	unit, err := ParseUnit(nodes.StringOr(config, "unit", string(UnitSeconds)))
	if err != nil {
		return nil, err
	}

	if sleepFn == nil {
		sleepFn = sleep
	}

	// Clamp before converting: large requests overflow time.Duration, and the
	// product itself may overflow to +Inf, which JSON cannot carry.
	requested := min(duration*float64(unit), math.MaxFloat64)

	actual := MaxDelay
	if requested < float64(MaxDelay) {
		actual = time.Duration(requested)
	}

	return &DelayNode{
		id:          id,
		requestedMs: requested / float64(time.Millisecond),
		actual:      actual,
		sleep:       sleepFn,
	}, nil
}

// ParseUnit returns the length of one unit.
func ParseUnit(unit string) (time.Duration, error) {
	switch Unit(unit) {
	case UnitMilliseconds, "milliseconds":
		return time.Millisecond, nil
	case UnitSeconds, "s", "second":
		return time.Second, nil
	case UnitMinutes, "m", "minute":
		return time.Minute, nil
	case UnitHours, "h", "hour":
		return time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown delay unit '%s'", unit)
	}
}

func (n *DelayNode) ID() string {
	return n.id
}

func (n *DelayNode) Kind() models.NodeKind {
	return models.NodeKindDelay
}

func (n *DelayNode) Execute(ctx context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	if n.actual == MaxDelay && n.requestedMs > float64(MaxDelay.Milliseconds()) {
		logger.WarnContext(ctx, "Delay clamped", "requested_ms", n.requestedMs, "max", MaxDelay)
	}

	if err := n.sleep(ctx, n.actual); err != nil {
		return nil, fmt.Errorf("delay interrupted: %w", err)
	}

	return map[string]any{
		"delayed":     true,
		"requestedMs": n.requestedMs,
		"actualMs":    n.actual.Milliseconds(),
	}, nil
}
