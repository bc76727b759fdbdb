package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDataError struct {
	data any
	msg  string
}

func (m *mockDataError) Error() string {
	return m.msg
}

func (m *mockDataError) ErrorData() any {
	return m.data
}

func TestRPCError(t *testing.T) {
	base := errors.New("connection refused")
	err := &RPCError{Method: "eth_getLogs", Err: base}

	assert.Contains(t, err.Error(), "eth_getLogs")
	assert.ErrorIs(t, err, base)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "transient", errorType(errors.New("503 service unavailable")))
	assert.Equal(t, "permanent", errorType(errors.New("invalid argument")))
}

func TestIsTooManyResultsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantMatch bool
		wantData  string
	}{
		{
			name:      "nil error",
			err:       nil,
			wantMatch: false,
			wantData:  "",
		},
		{
			name:      "non-DataError error",
			err:       errors.New("some other error"),
			wantMatch: false,
			wantData:  "",
		},
		{
			name: "DataError with unrelated message",
			err: &mockDataError{
				data: "Some other error message",
				msg:  "Some other error message",
			},
			wantMatch: false,
			wantData:  "Some other error message",
		},
		{
			name: "DataError with too many results message",
			err: &mockDataError{
				data: "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].",
				msg:  "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].",
			},
			wantMatch: true,
			wantData:  "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotMatch, gotData := IsTooManyResultsError(tt.err)

			require.Equal(t, tt.wantData, gotData)
			require.Equal(t, tt.wantMatch, gotMatch)
		})
	}
}

func TestParseSuggestedBlockRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		errMsg   string
		wantFrom uint64
		wantTo   uint64
		wantOK   bool
	}{
		{
			name:   "empty error string",
			errMsg: "",
		},
		{
			name:   "no block range in error",
			errMsg: "Query returned more than 20000 results.",
		},
		{
			name:     "valid block range",
			errMsg:   "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].",
			wantFrom: 8256805,
			wantTo:   8261580,
			wantOK:   true,
		},
		{
			name:     "valid block range with extra spaces",
			errMsg:   "Try with this block range [0x1aBc,   0x2DEF].",
			wantFrom: 6844,
			wantTo:   11759,
			wantOK:   true,
		},
		{
			name:   "invalid hex in block range",
			errMsg: "Try with this block range [0xZZZZ, 0x1234].",
		},
		{
			name:   "missing block range brackets",
			errMsg: "Try with this block range 0x1234, 0x5678.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			from, to, ok := ParseSuggestedBlockRange(tt.errMsg)

			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantFrom, from)
			require.Equal(t, tt.wantTo, to)
		})
	}
}
