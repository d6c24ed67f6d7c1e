// Package telemetry 封装 OpenTelemetry SDK 初始化：OTLP gRPC 导出
// traces 与 metrics，禁用时保持全局 noop Provider。
package telemetry
