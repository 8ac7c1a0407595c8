// VoiceOS - API Gateway entrypoint
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/voiceos/backend/internal/app"
	"github.com/voiceos/backend/internal/config"
)

type proxyHandler func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// newProxyHandler serves router from API Gateway REST proxy events. The live
// status websocket is not reachable this way.
func newProxyHandler(router http.Handler) proxyHandler {
	return httpadapter.New(router).ProxyWithContext
}

// The session reaper does not run here. Abandoned sessions are ended by the
// server deployment sharing the same database.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	lambda.Start(newProxyHandler(a.Router))
}
