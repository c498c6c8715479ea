package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-xray-sdk-go/xray"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/infrastructure/di"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest/middleware"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.IsLambda = true

	// The container lives as long as the execution environment, so its
	// cleanup never runs.
	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	router := container.Router.Setup()
	if cfg.EnableTracing {
		traced := chi.NewRouter()
		traced.Use(func(next http.Handler) http.Handler {
			return xray.Handler(xray.NewFixedSegmentNamer("lifeos-canvas"), next)
		})
		traced.Mount("/", router)
		router = traced
	}
	chiLambda = chiadapter.NewV2(router)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
	)
}

// forwardIdentity replaces any client-supplied identity headers with the
// claims the API Gateway JWT authorizer validated.
func forwardIdentity(req *events.APIGatewayV2HTTPRequest) {
	for key := range req.Headers {
		switch strings.ToLower(key) {
		case strings.ToLower(middleware.HeaderGatewayAuthorized),
			strings.ToLower(middleware.HeaderUserID),
			strings.ToLower(middleware.HeaderUserEmail),
			strings.ToLower(middleware.HeaderUserRoles):
			delete(req.Headers, key)
		}
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	claims := authorizer.JWT.Claims
	if claims["sub"] == "" {
		return
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers[middleware.HeaderGatewayAuthorized] = "true"
	req.Headers[middleware.HeaderUserID] = claims["sub"]
	if email := claims["email"]; email != "" {
		req.Headers[middleware.HeaderUserEmail] = email
	}
	if len(authorizer.JWT.Scopes) > 0 {
		req.Headers[middleware.HeaderUserRoles] = strings.Join(authorizer.JWT.Scopes, ",")
	}
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	forwardIdentity(&req)

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Int("status_code", resp.StatusCode),
		)
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
