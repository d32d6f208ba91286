package metrics_test

import (
	"context"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/memory"
	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/metrics"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/storetest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWrappedStoreBehavesLikeInner(t *testing.T) {
	security.InitMetrics(nil)
	storetest.Run(t, func(t *testing.T) (registrystore.Store, context.Context) {
		return metrics.Wrap(memory.New()), context.Background()
	})
	if testutil.CollectAndCount(security.StoreLatency) == 0 {
		t.Fatal("expected store latency observations")
	}
}
