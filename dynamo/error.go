package dynamo

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
)

// IsConditionCheckFailure checks if the given error is an aws error that expresses a conditional failure exception.
// It works seamlessly in both single write and within a transaction operation.
func IsConditionCheckFailure(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	if strings.Contains(err.Error(), "ConditionalCheckFailedException") {
		return true
	}
	for _, code := range cancellationCodes(err) {
		if code == reasonConditionalCheckFailed {
			return true
		}
	}
	return false
}

// cancellationCodes returns the reason codes of a canceled transaction, indexed as the transaction items.
// It returns nil if the error is not a transaction cancellation.
func cancellationCodes(err error) []string {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	codes := make([]string, len(tce.CancellationReasons))
	for i, reason := range tce.CancellationReasons {
		codes[i] = aws.ToString(reason.Code)
	}
	return codes
}

type txFailure int

const (
	txUnknown txFailure = iota
	// the global position moved: another append won the race
	txRetry
	// an event item already exists
	txConflict
)

// classifyTxFailure tells apart a lost race on the global counter (item 0 of the transaction)
// from an (aggregate, sequence) conflict on one of the event items.
func classifyTxFailure(err error) txFailure {
	var tce *types.TransactionConflictException
	if errors.As(err, &tce) {
		return txRetry
	}
	codes := cancellationCodes(err)
	if codes == nil {
		return txUnknown
	}
	for i, code := range codes {
		if i > 0 && code == reasonConditionalCheckFailed {
			return txConflict
		}
	}
	for _, code := range codes {
		if code == reasonConditionalCheckFailed || code == reasonTransactionConflict {
			return txRetry
		}
	}
	return txUnknown
}
