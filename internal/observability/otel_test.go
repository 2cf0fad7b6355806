package observability

import (
	"context"
	"testing"

	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

func TestInitOTel_DisabledReturnsCallableShutdown(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	shutdown := InitOTel(context.Background(), log, OtelConfig{ServiceName: "videorag-backend"})
	if shutdown == nil {
		t.Fatalf("shutdown func must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
