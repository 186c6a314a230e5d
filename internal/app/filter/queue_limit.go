package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxLength int `yaml:"max_length" mapstructure:"max_length" default:"100" validate:"gte=1"`
}

// QueueLimitFilter caps the total queue length.
type QueueLimitFilter struct {
	queue  QueueView
	config QueueLimitConfig
}

// NewQueueLimitFilter creates a new queue limit filter.
func NewQueueLimitFilter(q QueueView) *QueueLimitFilter {
	return &QueueLimitFilter{
		queue:  q,
		config: QueueLimitConfig{MaxLength: 100},
	}
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Rejects requests once the queue holds the configured number of tracks"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request) Result {
	if len(ahead(f.queue, req.Entry.Seq)) >= f.config.MaxLength {
		return Reject("queue_full")
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func(q QueueView) Filter {
		return NewQueueLimitFilter(q)
	})
}
