package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/data"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

func main() {
	clearFirst := flag.Bool("clear", false, "Delete the bot's recent messages in the chat first")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: send-message [-clear] <chat_id> [message]")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 || (len(args) < 2 && !*clearFirst) {
		flag.Usage()
		os.Exit(1)
	}
	chatID := args[0]

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
	reporter := usecase.NewChannelReporter(data.NewFeishuRepo(client), cfg.Reporter.ToReporterConfig(), nil, log)

	if *clearFirst {
		channel, deleted, err := reporter.ClearChannel(ctx, chatID)
		if err != nil {
			log.Error(ctx, "failed to clear chat", logging.String("chat_id", chatID), logging.Err(err))
			os.Exit(1)
		}
		fmt.Printf("Cleared %d messages from %s\n", deleted, channel.Name)
	}

	if len(args) < 2 {
		return
	}
	handles, err := reporter.Publish(ctx, chatID, args[1])
	if err != nil {
		log.Error(ctx, "failed to send message", logging.Int("sent", len(handles)), logging.Err(err))
		os.Exit(1)
	}
	fmt.Printf("Message sent successfully (%d parts)\n", len(handles))
}
