package notifier

import (
	"fmt"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/notifier/ws"

	"go.uber.org/zap"
)

// Queue is the async channel-job sink (Kafka in production).
type Queue interface {
	PublishChannelJob(job *domain.ChannelJob) error
}

// Notifier holds the channel transports: the websocket manager for the
// synchronous in-app path and the job queue for everything else.
type Notifier struct {
	WS     *ws.Manager
	Queue  Queue
	logger *zap.Logger
}

func NewNotifier(wsManager *ws.Manager, queue Queue, logger *zap.Logger) *Notifier {
	return &Notifier{
		WS:     wsManager,
		Queue:  queue,
		logger: logger,
	}
}

// SendInApp pushes a websocket message to the user. Synchronous: the
// notification row is already persisted, so an offline user still sees it in
// their inbox and this succeeds.
func (n *Notifier) SendInApp(userID string, msg *domain.WSMessage) error {
	if n.WS == nil {
		return fmt.Errorf("websocket manager not initialized")
	}
	n.WS.Send(userID, msg)
	return nil
}

// QueueChannelJob hands an async delivery to the queue. The transport worker
// reports the outcome through the delivery-result callback.
func (n *Notifier) QueueChannelJob(job *domain.ChannelJob) error {
	if n.Queue == nil {
		return fmt.Errorf("channel job queue not initialized")
	}
	if err := n.Queue.PublishChannelJob(job); err != nil {
		return err
	}
	n.logger.Info("channel job queued",
		zap.Int64("notification_id", job.NotificationID),
		zap.Int64("delivery_id", job.DeliveryID),
		zap.String("channel", job.Channel),
		zap.Int("attempt", job.Attempt))
	return nil
}
