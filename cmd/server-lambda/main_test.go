package main

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"example/regcheck-api/app"
)

func TestWithSourceIPOverridesClientHeader(t *testing.T) {
	req := events.APIGatewayProxyRequest{
		Headers: map[string]string{
			"x-regcheck-source-ip": "10.0.0.1",
			"X-Forwarded-For":      "10.0.0.2",
		},
		MultiValueHeaders: map[string][]string{
			"X-REGCHECK-SOURCE-IP": {"10.0.0.1"},
		},
	}
	req.RequestContext.Identity.SourceIP = "203.0.113.7"

	out := withSourceIP(req)

	assert.Equal(t, map[string]string{
		"X-Forwarded-For":  "10.0.0.2",
		app.SourceIPHeader: "203.0.113.7",
	}, out.Headers)
	assert.Equal(t, map[string][]string{app.SourceIPHeader: {"203.0.113.7"}}, out.MultiValueHeaders)
}

func TestWithSourceIPWithoutIdentity(t *testing.T) {
	out := withSourceIP(events.APIGatewayProxyRequest{
		Headers: map[string]string{app.SourceIPHeader: "10.0.0.1"},
	})
	assert.Empty(t, out.Headers)
	assert.Nil(t, out.MultiValueHeaders)
}
