package observability

import (
	"strings"

	"github.com/smallbiznis/notifier/internal/config"
)

// Config holds observability configuration derived from the application config.
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
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "notifier"
	}
	environment := firstNonEmpty(obs.DeploymentEnv, cfg.Environment)
	version := firstNonEmpty(obs.ServiceVersion, cfg.AppVersion)
	endpoint := firstNonEmpty(obs.ExporterEndpoint, cfg.OTLPEndpoint)
	protocol := strings.ToLower(firstNonEmpty(obs.TracesProtocol, obs.ExporterProtocol, "grpc"))

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              version,
		LogLevel:             strings.ToLower(firstNonEmpty(obs.LogLevel, "info")),
		LogFormat:            strings.ToLower(firstNonEmpty(obs.LogFormat, "json")),
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    obs.SamplingRatio,
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
