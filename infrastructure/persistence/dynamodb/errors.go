package dynamodb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// classify converts an SDK error into a storage AppError carrying the AWS
// error code. Throttling is marked retryable; validation faults from the
// service are not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	appErr := pkgerrors.NewStorageError(op, err)

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return appErr
	}
	appErr = appErr.WithDetails(map[string]interface{}{"awsCode": apiErr.ErrorCode()})

	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		notFound   *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &limit):
		appErr.Retryable = true
	case errors.As(err, &notFound):
		appErr.Retryable = false
	case apiErr.ErrorFault() == smithy.FaultClient:
		appErr.Retryable = false
	}
	return appErr
}
