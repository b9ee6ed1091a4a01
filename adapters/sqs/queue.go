// Package sqsqueue implements queue.Queue on Amazon SQS.
package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/dishscout/dishscout/queue"
)

// API is the subset of the SQS client the adapter calls.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, opts ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, opts ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Queue implements queue.Queue backed by AWS SQS. The queue name passed to
// each method is ignored; QueueURL selects the destination.
type Queue struct {
	client  API
	cfg     Config
	mu      sync.Mutex
	handles map[string]string // taskID -> receiptHandle
}

// New constructs the adapter using the default AWS config chain.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs: queue_url is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awscfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewFromClient(client, cfg), nil
}

// NewFromClient constructs the adapter from an existing SQS client.
func NewFromClient(client API, cfg Config) *Queue {
	return &Queue{
		client:  client,
		cfg:     cfg.withDefaults(),
		handles: make(map[string]string),
	}
}

// Enqueue sends a task to SQS.
func (q *Queue) Enqueue(ctx context.Context, _ string, t *queue.Task) error {
	if t.EnqueueTime.IsZero() {
		t.EnqueueTime = time.Now().UTC()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"Kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(t.Kind)),
			},
			"JobID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(t.JobID),
			},
		},
	}
	if q.cfg.FIFO {
		groupID := q.cfg.MessageGroupID
		if groupID == "" {
			groupID = t.JobID
		}
		input.MessageGroupId = aws.String(groupID)
		input.MessageDeduplicationId = aws.String(t.ID)
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs SendMessage: %w", err)
	}
	return nil
}

// Dequeue long-polls until a task arrives or ctx is done.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*queue.Task, error) {
	for {
		t, err := q.DequeueWithTimeout(ctx, queueName, time.Duration(q.cfg.WaitTimeSeconds)*time.Second)
		if errors.Is(err, queue.ErrTimeout) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return t, err
	}
}

// DequeueWithTimeout performs one long-poll ReceiveMessage. An empty receive
// returns queue.ErrTimeout.
func (q *Queue) DequeueWithTimeout(ctx context.Context, _ string, timeout time.Duration) (*queue.Task, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl: aws.String(q.cfg.QueueURL),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       q.cfg.waitSeconds(timeout),
		VisibilityTimeout:     int32(q.cfg.VisibilityTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("sqs ReceiveMessage: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].Body == nil {
		return nil, queue.ErrTimeout
	}
	msg := out.Messages[0]

	var t queue.Task
	if err := json.Unmarshal([]byte(*msg.Body), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task body: %w", err)
	}
	t.Attempts = receiveCount(msg, t.Attempts)
	if msg.ReceiptHandle != nil {
		q.mu.Lock()
		q.handles[t.ID] = *msg.ReceiptHandle
		q.mu.Unlock()
	}
	return &t, nil
}

// receiveCount prefers the SQS receive count, which counts redeliveries the
// body cannot record.
func receiveCount(msg sqstypes.Message, fromBody int) int {
	if rc, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(rc); err == nil && n > 0 {
			return n
		}
	}
	if fromBody > 0 {
		return fromBody
	}
	return 1
}

// Ack deletes the message using the stored receipt handle.
func (q *Queue) Ack(ctx context.Context, _ string, taskID string) error {
	receipt, ok := q.takeHandle(taskID)
	if !ok {
		return fmt.Errorf("ack %s: %w", taskID, queue.ErrUnknown)
	}
	return q.delete(ctx, receipt)
}

// Nack makes the message visible again after RequeueBackoffSeconds. Without
// requeue it is dropped when DropOnNackNoRequeue is set, otherwise left for
// the redrive policy.
func (q *Queue) Nack(ctx context.Context, _ string, taskID string, requeue bool) error {
	receipt, ok := q.takeHandle(taskID)
	if !ok {
		return fmt.Errorf("nack %s: %w", taskID, queue.ErrUnknown)
	}
	if !requeue && q.cfg.DropOnNackNoRequeue {
		return q.delete(ctx, receipt)
	}
	var vis int32
	if requeue {
		vis = int32(q.cfg.RequeueBackoffSeconds)
	}
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.cfg.QueueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: vis,
	})
	if err != nil {
		return fmt.Errorf("sqs ChangeMessageVisibility: %w", err)
	}
	return nil
}

// Len returns ApproximateNumberOfMessages (ready only).
func (q *Queue) Len(ctx context.Context, _ string) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.cfg.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqs GetQueueAttributes: %w", err)
	}
	s := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("sqs queue length %q: %w", s, err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	return nil
}

func (q *Queue) delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("sqs DeleteMessage: %w", err)
	}
	return nil
}

func (q *Queue) takeHandle(taskID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handles[taskID]
	delete(q.handles, taskID)
	return h, ok
}
