package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MKWorldWide/divinebus/metrics"
	"github.com/MKWorldWide/divinebus/protocol"
)

// RegisterBuiltins installs the smoke-test endpoints every bus ships with:
// ping, restart_module, get_metrics, sync_heartbeat, send_alert. The metrics
// collector is the one external collaborator; production deployments replace
// these by registering over them before start (last write wins).
func RegisterBuiltins(r *Registry, logger *zap.Logger, collector metrics.Collector) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewRuntimeCollector()
	}
	for method, h := range map[string]Handler{
		"ping":           handlePing,
		"restart_module": handleRestartModule(logger),
		"get_metrics":    handleGetMetrics(collector),
		"sync_heartbeat": handleSyncHeartbeat,
		"send_alert":     handleSendAlert(logger),
	} {
		if err := r.Register(method, h); err != nil {
			return err
		}
	}
	return nil
}

func handlePing(ctx context.Context, params map[string]any) (any, error) {
	return map[string]any{"status": "alive", "timestamp": nowSeconds()}, nil
}

func handleRestartModule(logger *zap.Logger) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		module, _ := params["module"].(string)
		if module == "" {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidRequest, Message: "No module specified"}
		}
		logger.Info("restarting module", zap.String("module", module))
		return map[string]any{"status": "restarting", "module": module}, nil
	}
}

func handleGetMetrics(collector metrics.Collector) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return collector.Collect(ctx)
	}
}

func handleSyncHeartbeat(ctx context.Context, params map[string]any) (any, error) {
	return map[string]any{"status": "synced", "timestamp": nowSeconds()}, nil
}

func handleSendAlert(logger *zap.Logger) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		message, _ := params["message"].(string)
		if message == "" {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidRequest, Message: "No message provided"}
		}
		level, _ := params["level"].(string)
		if level == "" {
			level = "info"
		}
		logAlert(logger, level, message)
		return map[string]any{"status": "alert_sent", "message": message, "level": level}, nil
	}
}

func logAlert(logger *zap.Logger, level, message string) {
	fields := []zap.Field{zap.String("level", level), zap.String("alert", message)}
	switch level {
	case "debug":
		logger.Debug("alert", fields...)
	case "warning", "warn":
		logger.Warn("alert", fields...)
	case "error", "critical":
		logger.Error("alert", fields...)
	default:
		logger.Info("alert", fields...)
	}
}

// nowSeconds returns the current time as float seconds, matching the wire
// timestamp format.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
