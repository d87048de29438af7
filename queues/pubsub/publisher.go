package pubsub

import (
	"context"
	"encoding/json"

	"ringracers-battle-alert/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Publisher struct {
	projectID   string
	resultTopic string
	credsFile   string
	client      *gpubsub.Client
	topic       *gpubsub.Topic
}

func NewPublisher(projectID, resultTopic, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, resultTopic: resultTopic, credsFile: credsFile}
}

func (p *Publisher) PublishAlert(ctx context.Context, alert *queues.DiscoveryAlert) error {
	if p.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if p.credsFile != "" {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.resultTopic).Str("credsFile", p.credsFile).Msg("initializing pubsub publisher with explicit credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID, option.WithCredentialsFile(p.credsFile))
		} else {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.resultTopic).Msg("initializing pubsub publisher with default credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", p.projectID).Str("topic", p.resultTopic).Msg("failed to create pubsub client for publisher")
			return err
		}
		p.client = client
		p.topic = client.Topic(p.resultTopic)
		log.Info().Str("topic", p.resultTopic).Msg("pubsub publisher initialized")
	}
	b, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Str("jobId", alert.JobID).Msg("failed to marshal discovery alert")
		return err
	}
	r := p.topic.Publish(ctx, &gpubsub.Message{
		Data:       b,
		Attributes: map[string]string{"type": alert.Type, "jobId": alert.JobID},
	})
	id, err := r.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("jobId", alert.JobID).Msg("failed to publish discovery alert")
		return err
	}
	log.Debug().Str("messageID", id).Str("jobId", alert.JobID).Int("count", alert.Count).Msg("published discovery alert")
	return nil
}

// Close releases the underlying client, if one was created.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	return p.client.Close()
}
