package s3

import (
	"errors"
	"net/http"
	"testing"

	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"

	"github.com/s3ql/main/pkg/backend"
)

func TestClassifyMarksThrottlingAsTempFailure(t *testing.T) {
	err := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusTooManyRequests}},
		Err:      errors.New("slow down"),
	}
	assert.True(t, backend.IsTempFailure(classify(err)))
}

func TestClassifyMarks5xxAsTempFailure(t *testing.T) {
	err := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusInternalServerError}},
		Err:      errors.New("internal error"),
	}
	assert.True(t, backend.IsTempFailure(classify(err)))
}

func TestClassifyLeaves4xxPermanent(t *testing.T) {
	err := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
		Err:      errors.New("access denied"),
	}
	assert.False(t, backend.IsTempFailure(classify(err)))
}

func TestClassifyRecognizesConnectionReset(t *testing.T) {
	err := errors.New("read tcp: connection reset by peer")
	assert.True(t, backend.IsTempFailure(classify(err)))
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, classify(nil))
}
