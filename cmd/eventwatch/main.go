// eventwatch connects to a running eventsd and streams task and telemetry
// events to the console.
// Usage: go run ./cmd/eventwatch --url http://localhost:8866
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/mediasync-events/internal/model"
	"github.com/rickgao/mediasync-events/internal/realtime"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8866", "dashboard origin to connect to")
	watchTasks := flag.Bool("tasks", true, "stream task list updates")
	watchSysInfo := flag.Bool("sysinfo", true, "stream host telemetry")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if !*watchTasks && !*watchSysInfo {
		logger.Error("nothing to watch: enable -tasks and/or -sysinfo")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := realtime.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.OnError = func(message string) {
		fmt.Printf("[PROBLEM] %s\n", message)
	}

	client, err := realtime.New(cfg, logger)
	if err != nil {
		logger.Error("bad url", "url", *baseURL, "error", err)
		os.Exit(1)
	}

	if *watchTasks {
		client.SubscribeToTasks(func(tasks []model.TaskStatus) {
			printTasks(tasks, *verbose)
		})
	}
	if *watchSysInfo {
		client.SubscribeToSysInfo(func(info model.SysInfo) {
			printSysInfo(info, *verbose)
		})
	}

	// Attaching a listener already dials; the explicit call surfaces the
	// first failure and lets the automatic retries take over from there.
	if err := client.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := client.Stats()
				logger.Info("stats",
					"state", st.State,
					"active", st.ActiveCategories,
					"frames_received", st.FramesReceived,
					"frames_routed", st.FramesRouted,
					"parse_errors", st.ParseErrors,
					"send_errors", st.SendErrors,
					"listener_panics", st.ListenerPanics,
					"reconnect_attempts", st.ReconnectAttempts,
				)
			}
		}
	}()

	logger.Info("watching - press Ctrl+C to stop", "url", *baseURL)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()

	logger.Info("shutdown complete")
}

func printTasks(tasks []model.TaskStatus, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(tasks, "", "  ")
		fmt.Printf("[TASKS] %s\n", data)
		return
	}

	fmt.Printf("[TASKS] count=%d\n", len(tasks))
	for _, t := range tasks {
		if t.Error != "" {
			fmt.Printf("[TASK] id=%s kind=%s state=%s error=%q title=%q\n",
				t.ID, t.Kind, t.State, t.Error, t.Title)
			continue
		}
		fmt.Printf("[TASK] id=%s kind=%s state=%s progress=%.1f%% items=%d/%d speed=%s title=%q\n",
			t.ID, t.Kind, t.State, t.Progress*100, t.DoneItems, t.TotalItems, fmtSpeed(t.SpeedBPS), t.Title)
	}
}

func printSysInfo(info model.SysInfo, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Printf("[SYSINFO] %s\n", data)
		return
	}

	fmt.Printf("[SYSINFO] cpu=%.1f%% mem=%s/%s disk=%s/%s load1=%.2f uptime=%s\n",
		info.CPUPercent,
		fmtBytes(info.MemUsed), fmtBytes(info.MemTotal),
		fmtBytes(info.DiskUsed), fmtBytes(info.DiskTotal),
		info.Load1,
		fmtUptime(info.UptimeSec),
	)
}

func fmtBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtSpeed(bps int64) string {
	if bps <= 0 {
		return "0B/s"
	}
	return fmtBytes(uint64(bps)) + "/s"
}

func fmtUptime(sec uint64) string {
	d := time.Duration(sec) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
