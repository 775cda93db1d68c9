package main

// Provider blank imports: each import registers its factory with agentkind
// or notifier. Add new providers here as they are implemented.

import (
	_ "github.com/Strob0t/agentrelay/internal/adapter/approvalagent"
	_ "github.com/Strob0t/agentrelay/internal/adapter/discord"
	_ "github.com/Strob0t/agentrelay/internal/adapter/llmagent"
	_ "github.com/Strob0t/agentrelay/internal/adapter/publishagent"
	_ "github.com/Strob0t/agentrelay/internal/adapter/slack"
	_ "github.com/Strob0t/agentrelay/internal/adapter/staticagent"
)
