// Package scheduler implements the wake-up step: the single-leader pass
// that rewrites a one-shot EventBridge schedule after every invocation so
// the worker wakes again at the earliest pending batch, or a safety
// interval if none is pending.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/lease"
)

// API is the subset of *scheduler.Client the Wake-up Scheduler depends on.
type API interface {
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
}

// Store is the subset of the Store Gateway the scheduler needs.
type Store interface {
	GetEarliestPendingBatchTime(ctx context.Context) (*time.Time, error)
}

// Config holds the EventBridge Scheduler wiring.
type Config struct {
	RuleName         string
	GroupName        string
	WorkerLambdaARN  string
	SchedulerRoleARN string
	SafetyWakeup     time.Duration
}

// Scheduler implements the Wake-up Scheduler.
type Scheduler struct {
	api   API
	store Store
	lease *lease.Lease
	cfg   Config
	log   *logrus.Entry
}

// New constructs a Scheduler.
func New(api API, s Store, l *lease.Lease, cfg Config, log *logrus.Entry) *Scheduler {
	if cfg.GroupName == "" {
		cfg.GroupName = "default"
	}
	if cfg.SafetyWakeup <= 0 {
		cfg.SafetyWakeup = time.Hour
	}
	return &Scheduler{api: api, store: s, lease: l, cfg: cfg, log: log}
}

// Run performs one lease-guarded wake-up rewrite. A contended lease is not
// an error; lease-acquire and store failures propagate, and the caller
// logs without failing the invocation. Timer delete/create failures are
// logged here and not returned.
func (s *Scheduler) Run(ctx context.Context) error {
	acquired, err := s.lease.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: acquire lease: %w", err)
	}
	if !acquired {
		s.log.Info("another worker holds the scheduler lease, skipping")
		return nil
	}
	defer func() {
		if _, relErr := s.lease.Release(ctx); relErr != nil {
			s.log.WithError(relErr).Error("failed to release scheduler lease")
		}
	}()

	nextTime, err := s.store.GetEarliestPendingBatchTime(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: fetch earliest pending batch time: %w", err)
	}

	var target time.Time
	if nextTime != nil {
		target = *nextTime
		s.log.WithField("scheduled_for", target).Info("arming wake-up for next pending batch")
	} else {
		target = time.Now().UTC().Add(s.cfg.SafetyWakeup)
		s.log.WithField("scheduled_for", target).Info("no pending batches, arming safety wake-up")
	}

	if err := s.schedule(ctx, target); err != nil {
		s.log.WithError(err).Error("failed to update wake-up timer")
	}
	return nil
}

// schedule overwrites the named one-shot timer via delete-then-create, the
// only sequence the underlying primitive supports for overwrite semantics.
func (s *Scheduler) schedule(ctx context.Context, target time.Time) error {
	target = target.UTC()
	cronExpr := fmt.Sprintf("cron(%d %d %d %d ? %d)",
		target.Minute(), target.Hour(), target.Day(), int(target.Month()), target.Year())

	s.log.WithFields(logrus.Fields{"rule": s.cfg.RuleName, "cron": cronExpr}).Info("updating wake-up schedule")

	_, _ = s.api.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
		Name:      aws.String(s.cfg.RuleName),
		GroupName: aws.String(s.cfg.GroupName),
	})

	payload, err := json.Marshal(map[string]string{"action": "wake_up", "source": "eventbridge_scheduler"})
	if err != nil {
		return fmt.Errorf("scheduler: marshal timer payload: %w", err)
	}

	_, err = s.api.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:               aws.String(s.cfg.RuleName),
		GroupName:          aws.String(s.cfg.GroupName),
		ScheduleExpression: aws.String(cronExpr),
		Target: &types.Target{
			Arn:     aws.String(s.cfg.WorkerLambdaARN),
			RoleArn: aws.String(s.cfg.SchedulerRoleARN),
			Input:   aws.String(string(payload)),
		},
		FlexibleTimeWindow: &types.FlexibleTimeWindow{
			Mode: types.FlexibleTimeWindowModeOff,
		},
		ActionAfterCompletion: types.ActionAfterCompletionDelete,
	})
	if err != nil {
		return fmt.Errorf("scheduler: create schedule: %w", err)
	}
	return nil
}
