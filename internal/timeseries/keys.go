package timeseries

import (
	"fmt"
	"strings"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// Key schemas are positional: components appear in a fixed order and count so
// splitting on ':' recovers labels unambiguously.
//
//	api:{service}:{method}:{endpoint}:{statusCode}
//	event:{service}:{publish|consume}:{channel}
const (
	apiKeyPrefix   = "api"
	eventKeyPrefix = "event"
)

// APIRequestKey builds the series key for one API-latency series.
func APIRequestKey(service domain.ServiceName, method, endpoint string, statusCode int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", apiKeyPrefix, service, method, endpoint, statusCode)
}

// EventTraceKey builds the series key for one event-trace series.
func EventTraceKey(service domain.ServiceName, kind domain.TraceKind, channel string) string {
	return fmt.Sprintf("%s:%s:%s:%s", eventKeyPrefix, service, kind, channel)
}

// APIRequestLabels returns the label set stored alongside an API-latency series.
func APIRequestLabels(service domain.ServiceName, method, endpoint string, statusCode int) map[string]string {
	return map[string]string{
		"type":       string(domain.SeriesAPIRequest),
		"service":    string(service),
		"method":     method,
		"endpoint":   endpoint,
		"statusCode": fmt.Sprintf("%d", statusCode),
	}
}

// EventTraceLabels returns the label set stored alongside an event-trace series.
func EventTraceLabels(service domain.ServiceName, kind domain.TraceKind, channel string) map[string]string {
	return map[string]string{
		"type":      string(domain.SeriesEventTrace),
		"service":   string(service),
		"eventType": string(kind),
		"channel":   channel,
	}
}

// ParseLabels reconstructs labels from a key according to the positional
// schema of the given series type. Keys with too few components yield only
// the type label.
func ParseLabels(seriesType domain.SeriesType, key string) map[string]string {
	parts := strings.Split(key, ":")
	labels := map[string]string{"type": string(seriesType)}

	switch seriesType {
	case domain.SeriesAPIRequest:
		if len(parts) >= 4 {
			labels["service"] = parts[1]
			labels["method"] = parts[2]
			labels["endpoint"] = parts[3]
			if len(parts) > 4 {
				labels["statusCode"] = parts[4]
			}
		}
	case domain.SeriesEventTrace:
		if len(parts) >= 4 {
			labels["service"] = parts[1]
			labels["eventType"] = parts[2]
			labels["channel"] = parts[3]
		}
	}
	return labels
}

// BuildPattern assembles a glob key pattern from a series type and filter
// values, substituting '*' for unspecified positional components. Endpoint
// filters are embedded as substring wildcards to tolerate path-parameter
// variation; a leading '/' is stripped first.
func BuildPattern(seriesType domain.SeriesType, filters map[string]string) string {
	segment := func(key string) string {
		if v := filters[key]; v != "" {
			return v
		}
		return "*"
	}

	switch seriesType {
	case domain.SeriesAPIRequest:
		endpoint := "*"
		if v := filters["endpoint"]; v != "" {
			endpoint = "*" + strings.TrimPrefix(v, "/") + "*"
		}
		return strings.Join([]string{apiKeyPrefix, segment("service"), segment("method"), endpoint, segment("statusCode")}, ":")
	case domain.SeriesEventTrace:
		return strings.Join([]string{eventKeyPrefix, segment("service"), segment("eventType"), segment("channel")}, ":")
	default:
		return "*"
	}
}
