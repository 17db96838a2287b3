package sqs

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type clientMock struct {
	mu     sync.Mutex
	err    error
	calls  int
	traces map[string][]types.SendMessageBatchRequestEntry
	// failAfter makes every send past the given count fail.
	failAfter int
	// failOnce makes the first send report the given entry ids as failed.
	failOnce []string
}

var _ ClientAPI = &clientMock{}

func (c *clientMock) SendMessageBatch(ctx context.Context,
	params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.failAfter > 0 && c.calls > c.failAfter {
		return nil, errors.New("send failed")
	}
	if c.traces == nil {
		c.traces = make(map[string][]types.SendMessageBatchRequestEntry)
	}

	ids := map[string]struct{}{}
	for _, e := range params.Entries {
		if _, ok := ids[*e.Id]; ok {
			return nil, errors.New("BatchEntryIdsNotDistinct: " + *e.Id)
		}
		ids[*e.Id] = struct{}{}
	}

	failed := map[string]struct{}{}
	if c.calls == 1 {
		for _, id := range c.failOnce {
			failed[id] = struct{}{}
		}
	}
	out := &sqs.SendMessageBatchOutput{}
	for _, e := range params.Entries {
		if _, ok := failed[*e.Id]; ok {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{
				Id:          e.Id,
				Code:        aws.String("InternalError"),
				SenderFault: false,
			})
			continue
		}
		c.traces[*params.QueueUrl] = append(c.traces[*params.QueueUrl], e)
	}
	return out, nil
}
