package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errTestInsufficient = BadRequest("insufficient balance", nil, WithReason(ReasonInsufficientBalance))

func TestBaseErrorIsMatchesCodeAndReason(t *testing.T) {
	wrapped := fmt.Errorf("spend: %w", BadRequest("not enough credits", errors.New("balance 5 < 10"), WithReason(ReasonInsufficientBalance)))

	require.True(t, errors.Is(wrapped, errTestInsufficient))
	require.False(t, errors.Is(wrapped, BadRequest("x", nil, WithReason(ReasonInvalidArgument))))
	require.Equal(t, ReasonInsufficientBalance, ReasonOf(wrapped))
	require.Equal(t, StatusBadRequest, StatusOf(wrapped))
}

func TestReasonOfPlainError(t *testing.T) {
	require.Equal(t, ReasonNone, ReasonOf(errors.New("boom")))
	require.Equal(t, StatusInternal, StatusOf(errors.New("boom")))
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusBadRequest.HTTPStatus())
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusInternal.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("weird").HTTPStatus())
}

func TestJSONHidesWrappedError(t *testing.T) {
	err := Internal("failed to grant", errors.New("pq: connection refused"))

	var be BaseError
	require.True(t, errors.As(err, &be))
	body := be.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "failed to grant", body["message"])
	require.Contains(t, be.Error(), "connection refused")
}

func TestToGRPCError(t *testing.T) {
	err := ToGRPCError(NotFound("balance not found", nil, WithReason(ReasonNotFound)))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
	require.Contains(t, st.Message(), "NOT_FOUND")

	require.Nil(t, ToGRPCError(nil))
	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	require.Equal(t, codes.Internal, st.Code())
}
