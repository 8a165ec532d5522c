// Package telemetry 配置将评估过程写入文件的 OpenTelemetry 追踪
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// ServiceName 写入追踪资源的服务名
const ServiceName = "mic-eval"

// ShutdownFunc 刷新并关闭追踪输出
type ShutdownFunc func(context.Context) error

// Setup 在 traceFile 非空时安装全局 TracerProvider，否则返回空操作
func Setup(traceFile, runID string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if strings.TrimSpace(traceFile) == "" {
		return noop, nil
	}

	if dir := filepath.Dir(traceFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return noop, fmt.Errorf("创建追踪目录失败: %w", err)
		}
	}
	file, err := os.OpenFile(traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return noop, fmt.Errorf("打开追踪文件失败: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file), stdouttrace.WithPrettyPrint())
	if err != nil {
		file.Close()
		return noop, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("run.id", runID),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	utils.Info("追踪已启用，输出到: %s", traceFile)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), file.Close())
	}, nil
}
