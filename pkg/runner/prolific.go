package runner

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/autoresearch/autoloop/pkg/adapters/firebase"
	"github.com/autoresearch/autoloop/pkg/adapters/prolific"
	"github.com/autoresearch/autoloop/pkg/domain"
)

// Recruiter is the recruitment side (satisfied by *prolific.Client).
type Recruiter interface {
	CreateStudy(ctx context.Context, spec prolific.StudySpec) (*prolific.Study, error)
	Study(ctx context.Context, studyID string) (*prolific.Study, error)
	Publish(ctx context.Context, studyID string) error
	Pause(ctx context.Context, studyID string) error
	Start(ctx context.Context, studyID string) error
}

// FirebaseProlific deploys conditions to the hosted experiment and recruits
// participants through Prolific. Each poll it reconciles the study state with
// hosting availability:
//
//	hosting available  + study UNPUBLISHED -> publish
//	hosting available  + study PAUSED      -> start
//	hosting unavailable + study ACTIVE     -> pause
//
// The run is done when the study collected as many submissions as it has
// places and every hosted condition is finished.
type FirebaseProlific struct {
	host      Host
	recruiter Recruiter
	spec      prolific.StudySpec
	interval  time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// ProlificOption configures the runner.
type ProlificOption func(*FirebaseProlific)

// WithProlificInterval sets the polling interval. Default 30s.
func WithProlificInterval(d time.Duration) ProlificOption {
	return func(r *FirebaseProlific) {
		r.interval = d
	}
}

// WithProlificLogger sets a structured logger.
func WithProlificLogger(logger *slog.Logger) ProlificOption {
	return func(r *FirebaseProlific) {
		r.logger = logger
	}
}

// WithRecruitmentHooks registers lifecycle hooks; OnRecruitment fires on
// every study transition the runner performs.
func WithRecruitmentHooks(hooks domain.LifecycleHooks) ProlificOption {
	return func(r *FirebaseProlific) {
		r.hooks = hooks
	}
}

// NewFirebaseProlific creates the recruiting runner. The study spec's
// TotalAvailablePlaces is overridden per run with the condition count.
func NewFirebaseProlific(host Host, recruiter Recruiter, spec prolific.StudySpec, opts ...ProlificOption) *FirebaseProlific {
	r := &FirebaseProlific{
		host:      host,
		recruiter: recruiter,
		spec:      spec,
		interval:  30 * time.Second,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FirebaseProlific) Name() string { return "firebase-prolific" }

// Run blocks until recruitment and data collection both completed, or ctx is
// cancelled.
func (r *FirebaseProlific) Run(ctx context.Context, conditions []domain.Condition) ([]domain.Trial, error) {
	if err := r.host.SendConditions(ctx, conditions); err != nil {
		return nil, err
	}

	spec := r.spec
	spec.TotalAvailablePlaces = len(conditions)

	study, err := r.recruiter.CreateStudy(ctx, spec)
	if err != nil {
		return nil, err
	}

	// The platform's maximum allowed time bounds how long a participant can
	// legitimately hold a condition before it is reclaimed.
	timeout := time.Duration(study.MaximumAllowedTime) * time.Minute

	r.logger.Info("recruitment started",
		"study_id", study.ID,
		"places", spec.TotalAvailablePlaces,
		"condition_timeout", timeout,
	)

	for {
		hostStatus, err := r.host.CheckStatus(ctx, timeout)
		if err != nil {
			return nil, err
		}

		current, err := r.recruiter.Study(ctx, study.ID)
		if err != nil {
			return nil, err
		}

		if current.NumberOfSubmissions >= current.TotalAvailablePlaces && hostStatus == firebase.StatusFinished {
			r.logger.Info("recruitment complete",
				"study_id", study.ID,
				"submissions", current.NumberOfSubmissions,
			)
			return collectTrials(ctx, r.host, conditions)
		}

		switch hostStatus {
		case firebase.StatusAvailable:
			if current.Status == prolific.StatusUnpublished {
				if err := r.transition(ctx, study.ID, prolific.ActionPublish, r.recruiter.Publish); err != nil {
					return nil, err
				}
			}
			if current.Status == prolific.StatusPaused {
				if err := r.transition(ctx, study.ID, prolific.ActionStart, r.recruiter.Start); err != nil {
					return nil, err
				}
			}
		case firebase.StatusUnavailable:
			if current.Status == prolific.StatusActive {
				if err := r.transition(ctx, study.ID, prolific.ActionPause, r.recruiter.Pause); err != nil {
					return nil, err
				}
			}
		}

		if err := sleep(ctx, r.interval); err != nil {
			return nil, err
		}
	}
}

func (r *FirebaseProlific) transition(ctx context.Context, studyID, action string, do func(context.Context, string) error) error {
	if err := do(ctx, studyID); err != nil {
		return err
	}
	if r.hooks.OnRecruitment != nil {
		r.hooks.OnRecruitment(ctx, &domain.RecruitmentEvent{
			EventBase: domain.EventBase{
				Timestamp: time.Now().UTC(),
				Type:      domain.EventRecruitment,
			},
			StudyID: studyID,
			Action:  action,
		})
	}
	return nil
}
