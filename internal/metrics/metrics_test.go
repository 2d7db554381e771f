package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngest(t *testing.T) {
	before := testutil.ToFloat64(IngestTotal.WithLabelValues("fish", "decrypt_failed"))
	RecordIngest("fish", "decrypt_failed")
	RecordIngest("fish", "decrypt_failed")
	after := testutil.ToFloat64(IngestTotal.WithLabelValues("fish", "decrypt_failed"))
	if after-before != 2 {
		t.Fatalf("expected +2, got %v", after-before)
	}
}

func TestRecordHTTPRequest_UnmatchedRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	RecordHTTPRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	if after-before != 1 {
		t.Fatalf("expected +1, got %v", after-before)
	}
}

func TestTrackLiveConnection(t *testing.T) {
	before := testutil.ToFloat64(LiveConnections)
	TrackLiveConnection(true)
	TrackLiveConnection(true)
	TrackLiveConnection(false)
	if got := testutil.ToFloat64(LiveConnections) - before; got != 1 {
		t.Fatalf("expected +1 open connection, got %v", got)
	}
}
