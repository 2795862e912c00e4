package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	cause := errors.New("driver: connection reset")
	err := Wrap(KindUnavailable, "DB_DOWN", "could not reach database", cause)

	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("something else")))
}

func TestInsufficientCarriesDetails(t *testing.T) {
	err := Insufficient("sku-1", 5, 3)
	assert.Equal(t, KindInsufficient, err.Kind)
	assert.Equal(t, int64(5), err.Details["requested"])
	assert.Equal(t, int64(3), err.Details["available"])
}
