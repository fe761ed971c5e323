// Package bwsrv provides a batteries-included server for handlers that speak HTTP/1.x through bwire.
//
// # Overview
//
// bwsrv handles the boilerplate of running a bwire based server: environment parsing, structured logging,
// OpenTelemetry tracing, connection deadlines and graceful shutdown. A complete application is created in one call:
//
//	bwsrv.NewApp[Env](NewHandler,
//	    bwsrv.WithMiddleware(bwsrv.WithAccessLog()),
//	    bwsrv.WithFx(fx.Provide(NewStore)),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bwsrv.BaseEnvironment
//	    Greeting string `env:"GREETING" envDefault:"hello"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable              | Required | Default | Description                                        |
//	|-----------------------|----------|---------|----------------------------------------------------|
//	| BW_SERVICE_NAME       | Yes      | -       | Service name for logging and tracing               |
//	| BW_ADDR               | No       | :8080   | Address the server listens on                      |
//	| BW_LOG_LEVEL          | No       | info    | Log level (debug, info, warn, error)               |
//	| BW_LOG_FILE           | No       | -       | Also write logs to this file, rotated by size      |
//	| BW_OTEL_EXPORTER      | No       | stdout  | Trace exporter: "stdout" or "none"                 |
//	| BW_IDLE_TIMEOUT       | No       | 2m      | Longest wait for the next request on a connection  |
//	| BW_HEADER_TIMEOUT     | No       | 10s     | Longest silence while a request arrives            |
//	| BW_WRITE_TIMEOUT      | No       | 30s     | Longest silence while a response is written        |
//	| BW_ENABLE_H2C         | No       | false   | Hand HTTP/2 prior knowledge connections to h2      |
//	| BW_MAX_HEADER_BYTES   | No       | 8192    | Largest request head                               |
//	| BW_MAX_PIPELINE_DEPTH | No       | 16      | Most requests read ahead of their responses        |
//
// The remaining codec limits of [bwire.Config] are read with the same BW_ prefix.
//
// # Handlers
//
// A [Handler] receives the decoded request and a buffered [ResponseWriter]. Errors are returned rather than written:
// an [*Error] is answered with its status, a bwire error with the status of its code and anything else with 500. The
// body of a request that the handler left unread is drained when it is small, otherwise the connection is closed
// after the response.
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and should be injected into handler constructors via fx:
//
//	func NewHandler(rt *bwsrv.Runtime[Env]) bwsrv.Handler {
//	    return bwsrv.HandlerFunc(func(ctx context.Context, w bwsrv.ResponseWriter, r *bwsrv.Request) error {
//	        bwsrv.Log(ctx).Info("greeting", zap.String("target", r.Target))
//	        _, err := io.WriteString(w, rt.Env().Greeting)
//	        return err
//	    })
//	}
//
// # Testing
//
// The bwsrvtest package builds the same dependency graph with fxtest so that tests fail immediately on wiring errors.
package bwsrv
