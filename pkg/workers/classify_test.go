package workers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/siteclient"
)

func TestClassifySiteErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errClass
	}{
		{"not found", &siteclient.StatusError{Status: 404, Op: "x"}, errClassNotFound},
		{"retryable gateway", &siteclient.StatusError{Status: 502, Op: "x"}, errClassRetryableStatus},
		{"retryable cloudflare", &siteclient.StatusError{Status: 520, Op: "x"}, errClassRetryableStatus},
		{"permanent status", &siteclient.StatusError{Status: 401, Op: "x"}, errClassPermanent},
		{"non status error", errors.New("dial tcp: connection refused"), errClassRetryableConnection},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, classifySiteErr(c.err))
		})
	}
}

func TestClassifyChatErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errClass
	}{
		{"blocked", &chatclient.BlockedError{Reason: "deactivated"}, errClassBlocked},
		{"file part missing", &chatclient.FilePartMissingError{}, errClassNotFound},
		{"other", errors.New("temporary network hiccup"), errClassRetryableConnection},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, classifyChatErr(c.err))
		})
	}
}
