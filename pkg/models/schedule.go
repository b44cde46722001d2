package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronExpression is returned when a schedule carries an unparsable expression.
var ErrInvalidCronExpression = errors.New("invalid cron expression")

// Schedule fires a flow version's trigger on a cron expression.
type Schedule struct {
	// ID uniquely identifies this schedule entry
	ID string `json:"id" validate:"required"`

	AccountID     string `json:"account_id"      validate:"required"`
	FlowID        string `json:"flow_id"         validate:"required"`
	FlowVersionID string `json:"flow_version_id" validate:"required"`
	Stage         Stage  `json:"stage"           validate:"required,oneof=testing production"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday)
	CronExpression string `json:"cron_expression" validate:"required"`

	// Active schedules are the only ones registered by the schedule source
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NextAfter returns the next fire time after reference.
func (s *Schedule) NextAfter(reference time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidCronExpression, err)
	}

	return cronSchedule.Next(reference), nil
}
