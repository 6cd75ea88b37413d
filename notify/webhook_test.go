package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilib/circulation-go/circulation"
	"github.com/unilib/circulation-go/notify"
)

func Test_NewWebhookDispatcher_FailsOnEmptyEndpoint(t *testing.T) {
	// act
	dispatcher, err := notify.NewWebhookDispatcher("")

	// assert
	assert.ErrorIs(t, err, notify.ErrEmptyEndpoint)
	assert.Nil(t, dispatcher)
}

func Test_NewWebhookDispatcher_FailsOnUnparsableEndpoint(t *testing.T) {
	// act
	_, err := notify.NewWebhookDispatcher("not a url")

	// assert
	assert.ErrorIs(t, err, notify.ErrInvalidEndpoint)
}

func Test_WebhookDispatcher_Notify_PostsJSONBody(t *testing.T) {
	// arrange
	userID := uuid.New()
	sentAt := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		require.NoError(t, readErr)
		require.NoError(t, json.Unmarshal(body, &received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	dispatcher, err := notify.NewWebhookDispatcher(server.URL,
		notify.WithWebhookClock(func() time.Time { return sentAt }))
	require.NoError(t, err)

	// act
	notifyErr := dispatcher.Notify(context.Background(), userID, circulation.TemplateLoanOverdue, map[string]string{"loan_id": "abc"})

	// assert
	require.NoError(t, notifyErr)
	assert.Equal(t, userID.String(), received["user_id"])
	assert.Equal(t, string(circulation.TemplateLoanOverdue), received["template"])
	assert.Equal(t, map[string]any{"loan_id": "abc"}, received["payload"])
}

func Test_WebhookDispatcher_Notify_FailsOnServerError(t *testing.T) {
	// arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	dispatcher, err := notify.NewWebhookDispatcher(server.URL)
	require.NoError(t, err)

	// act
	notifyErr := dispatcher.Notify(context.Background(), uuid.New(), circulation.TemplateLoanCreated, nil)

	// assert
	assert.Error(t, notifyErr)
}
