package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
}

// UserPendingFilter limits how many tracks a single requester may have waiting.
type UserPendingFilter struct {
	queue  QueueView
	config UserPendingConfig
}

// NewUserPendingFilter creates a new user pending filter.
func NewUserPendingFilter(q QueueView) *UserPendingFilter {
	return &UserPendingFilter{
		queue:  q,
		config: UserPendingConfig{MaxPending: 3},
	}
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Limits the number of queued tracks per requester"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("user pending filter config: %+v", config)
	return nil
}

func (f *UserPendingFilter) Check(ctx context.Context, req Request) Result {
	pending := 0
	for _, e := range ahead(f.queue, req.Entry.Seq) {
		if e.Requester.ID == req.Entry.Requester.ID {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func(q QueueView) Filter {
		return NewUserPendingFilter(q)
	})
}
