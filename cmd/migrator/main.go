package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"channel_migrator/internal/cli"
)

func main() {
	// SIGINT / SIGTERM 取消 context，引擎保存进度后以 interrupted 结束
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.DefaultDeps()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
