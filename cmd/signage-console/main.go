package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gorm.io/datatypes"

	"signage-control-backend/config"
	"signage-control-backend/internal/apiclient"
	"signage-control-backend/internal/console"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/parse"
	"signage-control-backend/internal/reconciler"
)

const usage = `commands:
  brightness <0-100>   drag and release the brightness slider
  volume <0-100>       drag and release the volume slider
  save                 store the shown brightness/volume as desired settings
  play <contentId>     PLAY_CONTENT
  schedule <days> <on> <off>
                       add a power schedule entry, e.g. "schedule mon-fri 08:00 20:00"
  schedules            list the power schedule
  usage <period> [tz]  data usage for today, week, month, year or all
  devices [search]     list registered devices
  publish <media|playlist|schedule> <contentId> [name]
                       push content to the device
  <TYPE>               any other command type, e.g. REBOOT, PING, SCREEN_OFF
  quit`

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config (optional)")
	apiURL := flag.String("api", "", "API base URL (overrides console.api_url)")
	token := flag.String("token", os.Getenv("SIGNAGE_TOKEN"), "bearer token (overrides console.token)")
	deviceID := flag.String("device", "", "device id to watch")
	flag.Parse()

	logger := log.New(os.Stdout, "signage-console ", log.LstdFlags)

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}
	if *apiURL != "" {
		cfg.Console.APIURL = *apiURL
	}
	if *token != "" {
		cfg.Console.Token = *token
	}
	if cfg.Console.APIURL == "" || *deviceID == "" {
		fmt.Fprintln(os.Stderr, "usage: signage-console -api URL -device ID [-token TOKEN]")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := apiclient.New(cfg.Console.APIURL, apiclient.NewTokenStore(cfg.Console.Token), cfg.Console.RequestTimeout)
	client.OnUnauthorized = func() {
		logger.Println("session expired; log in again and restart with a fresh token")
		cancel()
	}

	rec := reconciler.New(client, *deviceID, cfg.Console.PollInterval, cfg.Console.HistoryLimit)
	view := console.NewDeviceView(*deviceID, client, rec, console.Options{
		RefreshDebounce: cfg.Console.RefreshDebounce,
		OverlayTTL:      cfg.Console.OverlayTTL,
		RequestTimeout:  cfg.Console.RequestTimeout,
	})
	defer view.Close()
	view.OnChange(func(st console.State) { render(logger, st) })
	rec.Subscribe(view.Apply)
	go rec.Run(ctx)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println(usage)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handle(ctx, view, client, *deviceID, strings.Fields(line)); quit {
				return
			}
		}
	}
}

func handle(ctx context.Context, view *console.DeviceView, client *apiclient.Client, deviceID string, args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "quit", "exit":
		return true
	case "brightness", "volume":
		if len(args) != 2 {
			fmt.Println("expected a value")
			return false
		}
		value, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Println("value must be a number")
			return false
		}
		slider := view.Slider(console.Field(strings.ToLower(args[0])))
		slider.Drag(value)
		_, _ = slider.Release(ctx)
	case "save":
		_ = view.SaveSettings(ctx)
	case "play":
		if len(args) != 2 {
			fmt.Println("expected a content id")
			return false
		}
		_, _ = view.Send(ctx, model.CommandPayload{Type: model.CommandPlayContent, Extra: map[string]any{"contentId": args[1]}})
	case "schedule":
		if len(args) != 4 {
			fmt.Println("expected days, power-on and power-off times")
			return false
		}
		if err := addSchedule(ctx, client, deviceID, args[1], args[2], args[3]); err != nil {
			fmt.Println(err)
		}
	case "schedules":
		entries, err := client.GetPowerSchedule(ctx, deviceID)
		if err != nil {
			fmt.Println(err)
			return false
		}
		for _, e := range entries {
			fmt.Printf("  days=%v on=%s off=%s enabled=%t\n", []int(e.DaysOfWeek), e.PowerOnTime, e.PowerOffTime, e.Enabled)
		}
	case "usage":
		if len(args) < 2 || len(args) > 3 {
			fmt.Println("expected a period and an optional timezone")
			return false
		}
		q := apiclient.UsageQuery{Period: args[1]}
		if len(args) == 3 {
			q.Timezone = args[2]
		}
		usage, err := client.DataUsage(ctx, deviceID, q)
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("  down=%d up=%d total=%d (%d samples)\n", usage.TotalDownloaded, usage.TotalUploaded, usage.Total, usage.RecordCount)
		for _, day := range usage.DailyBreakdown {
			fmt.Printf("  %s down=%d up=%d\n", day.Date, day.Downloaded, day.Uploaded)
		}
	case "devices":
		devices, err := client.ListDevices(ctx, apiclient.DeviceQuery{Search: strings.Join(args[1:], " ")})
		if err != nil {
			fmt.Println(err)
			return false
		}
		for _, d := range devices {
			online := "offline"
			if d.IsOnline {
				online = "online"
			}
			fmt.Printf("  %-36s %-24s %-7s %s\n", d.ID, d.Name, online, d.Status)
		}
	case "publish":
		if len(args) < 3 {
			fmt.Println("expected a content type and id")
			return false
		}
		job, err := client.CreatePublishJob(ctx, apiclient.PublishJobRequest{
			DeviceID:    deviceID,
			ContentType: strings.ToLower(args[1]),
			ContentID:   args[2],
			ContentName: strings.Join(args[3:], " "),
		})
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("publish job %d %s\n", job.ID, job.Status)
	default:
		_, _ = view.Send(ctx, model.CommandPayload{Type: model.CommandType(strings.ToUpper(args[0]))})
	}
	return false
}

// addSchedule appends one entry to the device's list. The backend replaces
// the list wholesale, so the current entries are sent along.
func addSchedule(ctx context.Context, client *apiclient.Client, deviceID, days, on, off string) error {
	parsedDays, err := parse.ParseDayList(days)
	if err != nil {
		return err
	}
	onAt, err := parse.ParseClock(on)
	if err != nil {
		return err
	}
	offAt, err := parse.ParseClock(off)
	if err != nil {
		return err
	}
	entries, err := client.GetPowerSchedule(ctx, deviceID)
	if err != nil {
		return err
	}
	entries = append(entries, model.PowerSchedule{
		DaysOfWeek:   datatypes.JSONSlice[int](parsedDays),
		PowerOnTime:  onAt.String(),
		PowerOffTime: offAt.String(),
		Enabled:      true,
	})
	saved, err := client.SetPowerSchedule(ctx, deviceID, entries)
	if err != nil {
		return err
	}
	fmt.Printf("power schedule saved (%d entries)\n", len(saved))
	return nil
}

func render(logger *log.Logger, st console.State) {
	if st.Device == nil {
		for _, msg := range st.Errors {
			logger.Println(msg)
		}
		return
	}
	online := "offline"
	if st.Online {
		online = "online"
	}
	logger.Printf("%s [%s, %s] brightness=%d volume=%d", st.Device.Name, online, st.Status, st.Brightness, st.Volume)
	for i, cmd := range st.Commands {
		if i == 5 {
			break
		}
		mark := ""
		if cmd.Stale {
			mark = " (no confirmation)"
		}
		logger.Printf("  #%d %-14s %-8s %s%s", cmd.ID, cmd.Type, cmd.State(), cmd.CreatedAt.Local().Format("15:04:05"), mark)
	}
	for _, msg := range st.Errors {
		logger.Println(msg)
	}
	if st.Toast != "" {
		logger.Println(st.Toast)
	}
}
