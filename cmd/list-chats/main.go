package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// list-chats prints every chat the bot belongs to, for filling in guild and channel ids in the config.
func main() {
	log := logging.Init(os.Stderr)
	ctx := context.Background()

	cfg, err := conf.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		log.Error(ctx, "FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		os.Exit(1)
	}

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, log)
	if err := client.RefreshChats(ctx); err != nil {
		log.Error(ctx, "failed to list chats", logging.Err(err))
		os.Exit(1)
	}

	configured := make(map[string]string) // chat_id -> guild/category
	for _, g := range cfg.Guilds {
		for _, cat := range domain.Categories {
			if cc, ok := g.DailyStats.For(cat); ok && cc.Enabled {
				configured[cc.ChannelID] = g.ID + "/" + cat.String()
			}
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT_KEY\tCHAT_ID\tNAME\tREPORT")
	for _, c := range client.Chats() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.TenantKey, c.ChatID, c.Name, configured[c.ChatID])
	}
	w.Flush()
}

