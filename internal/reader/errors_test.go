package reader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutNetError struct{ timeout bool }

func (e *timeoutNetError) Error() string   { return "net error" }
func (e *timeoutNetError) Timeout() bool   { return e.timeout }
func (e *timeoutNetError) Temporary() bool { return false }

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"malformed", fmt.Errorf("%w: junk", ErrMalformedFeed), ErrorKindMalformed},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ErrorKindTimeout},
		{"net timeout", fmt.Errorf("fetch: %w", error(&timeoutNetError{timeout: true})), ErrorKindTimeout},
		{"net refused", fmt.Errorf("fetch: %w", error(&timeoutNetError{})), ErrorKindNetwork},
		{"plain", errors.New("something else"), ErrorKindNetwork},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ClassifyFetchError(tc.err))
		})
	}
}
