// Package notify implements the optional completion-event publisher: after
// a file is finalized, a JSON ReceiptEvent is pushed onto an SQS queue.
// Grounded on the original dispatch/sqs.go, ported from aws-sdk-go (v1) to
// aws-sdk-go-v2's service/sqs to match export/s3.go's SDK generation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/harsh-quidich/camxfer"
)

// Queue wraps an SQS queue URL resolved once at construction.
type Queue struct {
	url  string
	conn *sqs.Client
	ctx  context.Context
}

// NewQueue resolves name to its queue URL and returns a ready Queue.
func NewQueue(cfg aws.Config, name string) (*Queue, error) {
	ctx := context.Background()
	conn := sqs.NewFromConfig(cfg)
	resp, err := conn.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("resolving queue url for %s: %w", name, err)
	}
	return &Queue{url: *resp.QueueUrl, conn: conn, ctx: ctx}, nil
}

// Send puts a raw message body on the queue.
func (q *Queue) Send(message string) error {
	_, err := q.conn.SendMessage(q.ctx, &sqs.SendMessageInput{
		MessageBody: aws.String(message),
		QueueUrl:    aws.String(q.url),
	})
	return err
}

// Notify implements camxfer.FinalStatusService, publishing event as a JSON
// message body.
func (q *Queue) Notify(event camxfer.ReceiptEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling receipt event: %w", err)
	}
	return q.Send(string(body))
}
