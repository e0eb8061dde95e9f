package observability

import (
	"strings"

	"github.com/smallbiznis/recyclesim/internal/config"
	"github.com/smallbiznis/recyclesim/internal/observability/metrics"
)

// Config is the slice of application config the observability stack reads.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	Push metrics.PushConfig
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "recyclesim"
	}
	environment := strings.TrimSpace(cfg.Environment)
	tel := cfg.Telemetry

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             tel.LogLevel,
		LogFormat:            tel.LogFormat,
		OtelEnabled:          tel.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.TrimSpace(tel.OtelProtocol),
		OtelSamplingRatio:    tel.SamplingRatio,
		Push: metrics.PushConfig{
			Enabled:     cfg.Push.Enabled,
			Exporter:    cfg.Push.Exporter,
			Endpoint:    cfg.Push.Endpoint,
			AuthToken:   cfg.Push.AuthToken,
			Interval:    cfg.Push.Interval,
			Job:         serviceName,
			Environment: environment,
			Instance:    cfg.InstanceID,
		},
	}
}

// Debug turns on stack traces and verbose request logs in debug level or a
// development environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
