package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	messages []*gcppubsub.Message
	result   publishResult
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return p.result
}

func testPubSub(pub publisher) *PubSub {
	return &PubSub{
		factory: func(string) publisher { return pub },
		topic:   "vault-transfers",
		logg:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		timeout: time.Second,
	}
}

func testInstruction() Instruction {
	return Instruction{
		SubscriptionID: 7,
		FromVault:      uuid.New(),
		ToAccount:      uuid.New(),
		Amount:         decimal.NewFromInt(50),
		PeriodIndex:    412,
		Timestamp:      1_000_000,
	}
}

func TestPublishTransfer(t *testing.T) {
	fake := &fakePublisher{result: fakeResult{id: "msg-1"}}
	svc := testPubSub(fake)
	instruction := testInstruction()

	if err := svc.PublishTransfer(context.Background(), instruction); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fake.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.messages))
	}

	msg := fake.messages[0]
	if msg.Attributes["subscription_id"] != "7" {
		t.Fatalf("unexpected subscription_id attribute %q", msg.Attributes["subscription_id"])
	}
	if msg.Attributes["period_index"] != "412" {
		t.Fatalf("unexpected period_index attribute %q", msg.Attributes["period_index"])
	}

	var decoded Instruction
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded.SubscriptionID != instruction.SubscriptionID || !decoded.Amount.Equal(instruction.Amount) {
		t.Fatalf("payload mismatch: %+v", decoded)
	}
}

func TestPublishTransferDeliveryFailure(t *testing.T) {
	fake := &fakePublisher{result: fakeResult{err: errors.New("broker unavailable")}}
	svc := testPubSub(fake)

	err := svc.PublishTransfer(context.Background(), testInstruction())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
}

func TestPublishTransferWithoutPublisher(t *testing.T) {
	svc := testPubSub(nil)
	err := svc.PublishTransfer(context.Background(), testInstruction())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestTopicResourceName(t *testing.T) {
	if got := topicResourceName("proj", "vault-transfers"); got != "projects/proj/topics/vault-transfers" {
		t.Fatalf("unexpected resource name %q", got)
	}
	full := "projects/other/topics/custom"
	if got := topicResourceName("proj", full); got != full {
		t.Fatalf("full resource names must pass through, got %q", got)
	}
	if got := topicResourceName("proj", "  "); got != "" {
		t.Fatalf("blank topic must resolve to empty, got %q", got)
	}
}
