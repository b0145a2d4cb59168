package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/i18n"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
	"github.com/pogostats/feishu-stats-reporter/internal/mcp"
)

// stats-mcp exposes the reporter daemon's HTTP API as MCP tools over stdio.
// Stdout carries the protocol, so logs go to stderr.

const defaultAPIURL = "http://127.0.0.1:9876"

func main() {
	log := logging.Init(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if err := logging.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "ignoring log level", logging.Err(err))
	}

	translator, err := i18n.NewTranslator(cfg.LocaleDir, cfg.Locale, log)
	if err != nil {
		log.Error(ctx, "failed to load translations", logging.Err(err))
		os.Exit(1)
	}

	baseURL := apiURL(os.Getenv("STATS_API_URL"), cfg.API.Addr)
	handler := mcp.NewHandler(mcp.NewClient(baseURL), translator, log)

	log.Info(ctx, "serving MCP over stdio", logging.String("api", baseURL))
	if err := mcp.NewServer(handler).Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error(ctx, "MCP server error", logging.Err(err))
		os.Exit(1)
	}
}

// apiURL prefers an explicit URL, then the daemon's configured listen address
func apiURL(explicit, addr string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if addr == "" {
		return defaultAPIURL
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}
