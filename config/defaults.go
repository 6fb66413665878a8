package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.corsorigins", "http://localhost:3000,http://localhost:8080")
	v.SetDefault("server.shutdowntimeout", "30s")

	// Database
	v.SetDefault("database.path", "chat_relay.db")

	// Redis (history cache). Empty address disables it.
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	// Auth. The secret default exists for local development only.
	v.SetDefault("auth.jwtsecret", "dev-secret-change-in-production")
	v.SetDefault("auth.accessduration", "15m")
	v.SetDefault("auth.refreshduration", "168h")
	v.SetDefault("auth.issuer", "chat-relay")

	// Assistant
	v.SetDefault("assistant.apiurl", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("assistant.apikey", "")
	v.SetDefault("assistant.model", "meta-llama/llama-3.3-70b-instruct:free")
	v.SetDefault("assistant.timeout", "30s")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
