package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"nesbot/bot"
	"nesbot/discord"
	"nesbot/log"
	"nesbot/nes"
)

var version = "devel"

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case versionMode:
		fmt.Println("nesbot", version)
	case runMode:
		botMain(cli.Run)
	}
}

func botMain(args Run) {
	cfg := LoadConfigOrDefault()
	if args.Channel != "" || args.Console != "" {
		if args.Channel != "" {
			cfg.Channel = args.Channel
		}
		if args.Console != "" {
			cfg.ConsoleAddr = args.Console
		}
		// Flag overrides become the defaults for the next run.
		if err := SaveConfig(cfg); err != nil {
			log.ModMain.WarnZ("failed to save config").Error("err", err).End()
		}
	}

	token := os.Getenv("NESBOT_TOKEN")
	if token == "" {
		fatalf("bot token NESBOT_TOKEN must be set")
	}
	if cfg.Channel == "" {
		fatalf("no channel id configured (--channel or config file)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	console, err := nes.Dial(cfg.ConsoleAddr)
	checkf(err, "failed to reach console at %s", cfg.ConsoleAddr)
	defer console.Close()

	sess := bot.NewSession(console, cfg.Session)
	checkf(sess.Boot(), "session boot failed")

	client := discord.NewClient(token)

	// Post the initial frame and button grid, and remember the attachment
	// id so later toggle updates can keep referencing it.
	still, err := sess.Still()
	checkf(err, "failed to encode initial frame")
	msg, err := client.CreateMessage(ctx, discord.Snowflake(cfg.Channel), bot.Rows(0), still.File())
	checkf(err, "failed to post initial message")
	if len(msg.Attachments) == 0 {
		fatalf("initial message has no attachment")
	}

	gw, err := discord.ConnectGateway(ctx, token)
	checkf(err, "failed to connect to gateway")

	loop := bot.NewLoop(sess, client, msg.Attachments[0].ID)
	err = loop.Run(ctx, gw.Events())
	gw.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		checkf(err, "session ended")
	}
	log.ModMain.InfoZ("bye").End()
}

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
