package app

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/config"
	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/internal/telemetry"
)

// secretKeys are config keys whose scalar values never reach the logs.
var secretKeys = map[string]bool{
	"api_key":    true,
	"password":   true,
	"basic_pass": true,
	"token":      true,
	"dsn":        true,
	"url":        true,
}

// registerServices publishes the process-wide services modules discover
// during Provision and Start.
func registerServices(appCtx *core.AppContext, redactor *security.Redactor) {
	appCtx.RegisterService(telemetry.ServiceMetrics, telemetry.NewRegistry())
	appCtx.RegisterService(security.ServiceRedactor, redactor)
}

// collectSecrets walks every module config and returns the values of
// secret-looking keys, with environment variables already expanded.
func collectSecrets(cfg *config.Config) []string {
	var out []string
	for _, node := range cfg.Modules {
		walkSecrets(&node, &out)
	}
	return out
}

func walkSecrets(node *yaml.Node, out *[]string) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind == yaml.ScalarNode && isSecretKey(key.Value) && val.Value != "" {
				*out = append(*out, val.Value)
				continue
			}
			walkSecrets(val, out)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range node.Content {
			walkSecrets(c, out)
		}
	}
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	if secretKeys[key] {
		return true
	}
	return strings.HasSuffix(key, "_token") || strings.HasSuffix(key, "_secret") || strings.HasSuffix(key, "_password")
}
