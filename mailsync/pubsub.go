package mailsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"github.com/gin-gonic/gin"
)

func syncTopicName() string {
	if v := strings.TrimSpace(os.Getenv("SYNC_TOPIC")); v != "" {
		return v
	}
	return "delivery-sync"
}

// PublishSyncRun queues a run for asynchronous execution.
func PublishSyncRun(ctx context.Context, runId uint, correlationId string) error {
	topicName := syncTopicName()

	if envBoolDefault("SYNC_CREATE_TOPIC", false) {
		client, err := config.GetClient(ctx)
		if err != nil {
			return err
		}
		if _, err := config.CreateTopicIfNotExists(client, topicName); err != nil {
			return err
		}
	}

	_, err := config.PublishJSON(ctx, topicName, SyncRunPayload{
		RunId:         runId,
		CorrelationId: correlationId,
	})
	return err
}

// PubSubPushHandler consumes push deliveries of queued runs. It always
// answers 204: a malformed envelope must not be redelivered, and run-level
// failures are recorded on the SyncRun row rather than retried by Pub/Sub.
func PubSubPushHandler(source MessageSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncRunPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		_ = ProcessSyncRun(c.Request.Context(), source, payload.RunId)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
