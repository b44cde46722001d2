package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// TaskAttributes are the span attributes identifying a task.
func TaskAttributes(taskID, flowSessionID, nodeID, pluginID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskIDKey, taskID),
		attribute.String(FlowSessionIDKey, flowSessionID),
		attribute.String(NodeIDKey, nodeID),
		attribute.String(PluginIDKey, pluginID),
	}
}
