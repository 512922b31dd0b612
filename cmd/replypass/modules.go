package main

// Compiled-in modules register themselves with core on import.
import (
	_ "github.com/replypass/replypass/internal/cron"
	_ "github.com/replypass/replypass/internal/engine"
	_ "github.com/replypass/replypass/internal/gateway"
	_ "github.com/replypass/replypass/internal/telemetry"
	_ "github.com/replypass/replypass/modules/provider/gemini"
	_ "github.com/replypass/replypass/modules/provider/openai"
	_ "github.com/replypass/replypass/modules/store/postgres"
	_ "github.com/replypass/replypass/modules/store/sqlite"
	_ "github.com/replypass/replypass/modules/usage/redis"
)
