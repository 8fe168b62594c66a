package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/vaultpay/subvault-backend/pkg/config"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultPublishTimeout = 15 * time.Second

var errProjectIDRequired = errors.New("gcp project id is required")

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSub publishes transfer instructions to a Pub/Sub topic.
type PubSub struct {
	factory publisherFactory
	topic   string
	logg    *logger.Logger
	timeout time.Duration
	close   func() error
}

// NewPubSub connects to Pub/Sub and returns a publisher for the configured
// transfer topic.
func NewPubSub(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*PubSub, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	client, err := gcppubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	factory := func(topic string) publisher {
		fullName := topicResourceName(cfg.ProjectID, topic)
		if fullName == "" {
			return nil
		}
		return newGCPPublisher(client.Publisher(fullName))
	}

	if logg != nil {
		logg.Info(ctx, "transfer publisher initialized")
	}

	return &PubSub{
		factory: factory,
		topic:   cfg.TransferTopic,
		logg:    logg,
		timeout: defaultPublishTimeout,
		close:   client.Close,
	}, nil
}

// PublishTransfer sends one transfer instruction. Errors are classified so
// callers can tell transient delivery failures from configuration faults.
func (p *PubSub) PublishTransfer(ctx context.Context, instruction Instruction) error {
	pub := p.factory(p.topic)
	if pub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transfer topic not configured")
	}

	payload, err := json.Marshal(instruction)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding transfer instruction")
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"subscription_id": strconv.FormatUint(uint64(instruction.SubscriptionID), 10),
			"period_index":    strconv.FormatUint(instruction.PeriodIndex, 10),
			"to_account":      instruction.ToAccount.String(),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		if status.Code(err) == codes.NotFound {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transfer topic does not exist")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing transfer instruction")
	}
	return nil
}

// Close releases the underlying client.
func (p *PubSub) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	return fmt.Sprintf("projects/%s/topics/%s", strings.TrimSpace(projectID), n)
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

// Nop is a Publisher that drops instructions, used in local development
// when no Pub/Sub project is configured.
type Nop struct {
	logg *logger.Logger
}

func NewNop(logg *logger.Logger) *Nop {
	return &Nop{logg: logg}
}

func (n *Nop) PublishTransfer(ctx context.Context, instruction Instruction) error {
	if n != nil && n.logg != nil {
		ctx = n.logg.WithSubscriptionID(ctx, instruction.SubscriptionID)
		n.logg.Warn(ctx, "transfer instruction dropped: no publisher configured")
	}
	return nil
}
