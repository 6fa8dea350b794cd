package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/furniture-storefront/internal/logger"
)

func TestFormatLine(t *testing.T) {
	ev := AuthEvent{
		Type:        EventDeactivated,
		PrincipalID: 12,
		ActorID:     1,
		OccurredAt:  time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	assert.Equal(t, "[2026-02-03T04:05:06Z] deactivated | principal_id=12 | actor_id=1\n", FormatLine(ev))

	ev = AuthEvent{Type: EventLogin, PrincipalID: 3, Method: "otp_email", Device: "iPhone", IP: "10.0.0.2", OccurredAt: ev.OccurredAt}
	assert.Equal(t, "[2026-02-03T04:05:06Z] login | principal_id=3 | method=otp_email | device=\"iPhone\" | ip=10.0.0.2\n", FormatLine(ev))
}

func TestHandleAppendsToAuditLog(t *testing.T) {
	dir := t.TempDir()
	a := &AuditConsumer{Dir: dir, Log: logger.Discard()}

	for _, typ := range []AuthEventType{EventLogin, EventLogout} {
		body, err := json.Marshal(AuthEvent{Type: typ, PrincipalID: 5, OccurredAt: time.Now()})
		require.NoError(t, err)
		require.NoError(t, a.Handle(body))
	}

	data, err := os.ReadFile(filepath.Join(dir, "auth.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "] login | principal_id=5")
	assert.Contains(t, string(data), "] logout | principal_id=5")
}

func TestHandleRejectsMalformed(t *testing.T) {
	a := &AuditConsumer{Dir: t.TempDir(), Log: logger.Discard()}
	assert.Error(t, a.Handle([]byte("{not json")))
	assert.Error(t, a.Handle([]byte(`{"principal_id":1}`)))
}
