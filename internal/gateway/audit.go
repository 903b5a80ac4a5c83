package gateway

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"toolgate/internal/logging"
	"toolgate/pkg/models"
)

// Auditor receives one record per invocation for an external component to
// mask and persist. Records name which argument keys were injected,
// never their values.
type Auditor interface {
	Record(rec models.CallRecord)
}

// LogAuditor is the default sink: one log line per call. Deployments that
// persist audit trails swap in their own Auditor.
type LogAuditor struct{}

func (LogAuditor) Record(rec models.CallRecord) {
	logging.Info("call %s tool=%s caller=%s status=%s latency=%s injected=%d",
		rec.ID, rec.ToolID, rec.CallerID, rec.Status, rec.Latency.Round(time.Millisecond), len(rec.InjectedKeys))
}

func newCallID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
