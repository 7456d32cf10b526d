package main

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/logging"
)

var ginLambda *ginadapter.GinLambda

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, withSourceIP(req))
}

// withSourceIP replaces any client-sent app.SourceIPHeader with the caller address API
// Gateway observed, so the router's TrustedPlatform lookup cannot be spoofed.
func withSourceIP(req events.APIGatewayProxyRequest) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		if !strings.EqualFold(k, app.SourceIPHeader) {
			headers[k] = v
		}
	}
	var multi map[string][]string
	if req.MultiValueHeaders != nil {
		multi = make(map[string][]string, len(req.MultiValueHeaders)+1)
		for k, v := range req.MultiValueHeaders {
			if !strings.EqualFold(k, app.SourceIPHeader) {
				multi[k] = v
			}
		}
	}

	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		headers[app.SourceIPHeader] = ip
		if multi != nil {
			multi[app.SourceIPHeader] = []string{ip}
		}
	}
	req.Headers = headers
	req.MultiValueHeaders = multi
	return req
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(cfg.Logs)
	cfg.HTTP.TrustedPlatform = app.SourceIPHeader
	cfg.HTTP.TrustedProxies = nil

	srv, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap server")
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(srv.Router())
	lambda.Start(Handler)
}
