package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lightlogic3/popflow/internal/domain"
)

// Trigger computes firing times for a job from its persisted trigger
// definition. Date triggers fire once; interval and cron triggers recur.
type Trigger struct {
	kind     domain.TriggerType
	runAt    time.Time
	period   time.Duration
	schedule cron.Schedule
	expr     string
}

// NewTrigger builds a trigger from the persisted definition.
// Cron expressions use the standard 5-field (minute-based) format.
func NewTrigger(kind domain.TriggerType, args domain.TriggerArgs) (*Trigger, error) {
	switch kind {
	case domain.TriggerDate:
		if args.RunAt == nil {
			return nil, fmt.Errorf("%w: date trigger requires run_at", domain.ErrInvalidTriggerArgs)
		}
		return &Trigger{kind: kind, runAt: args.RunAt.UTC()}, nil

	case domain.TriggerInterval:
		if args.Seconds <= 0 {
			return nil, fmt.Errorf("%w: interval trigger requires positive seconds", domain.ErrInvalidTriggerArgs)
		}
		return &Trigger{kind: kind, period: time.Duration(args.Seconds) * time.Second}, nil

	case domain.TriggerCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(args.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: parse cron %q: %v", domain.ErrInvalidTriggerArgs, args.Expr, err)
		}
		return &Trigger{kind: kind, schedule: schedule, expr: args.Expr}, nil
	}

	return nil, domain.ErrInvalidTriggerType
}

// Kind returns the trigger kind.
func (t *Trigger) Kind() domain.TriggerType {
	return t.kind
}

// First returns the initial firing time after now.
func (t *Trigger) First(now time.Time) time.Time {
	switch t.kind {
	case domain.TriggerDate:
		return t.runAt
	case domain.TriggerInterval:
		return now.Add(t.period)
	default:
		return t.schedule.Next(now)
	}
}

// Next returns the firing time following a firing at now. The second
// return value is false for date triggers, which never fire again.
func (t *Trigger) Next(now time.Time) (time.Time, bool) {
	switch t.kind {
	case domain.TriggerDate:
		return time.Time{}, false
	case domain.TriggerInterval:
		return now.Add(t.period), true
	default:
		return t.schedule.Next(now), true
	}
}

// String returns a human-readable trigger description.
func (t *Trigger) String() string {
	switch t.kind {
	case domain.TriggerDate:
		return fmt.Sprintf("date(%s)", t.runAt.Format(time.RFC3339))
	case domain.TriggerInterval:
		return fmt.Sprintf("interval(%s)", t.period)
	default:
		return fmt.Sprintf("cron(%s)", t.expr)
	}
}
