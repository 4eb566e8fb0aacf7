// Taro Monitor - follows a running creature's status stream
// Prints one line per push: jaw pulse, audio level, stretch speed and
// pipeline health.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-taro/internal/config"
	"github.com/teslashibe/go-taro/internal/log"
	"github.com/teslashibe/go-taro/pkg/web"
)

func main() {
	addr := flag.String("addr", config.Env("TARO_MONITOR_ADDR", "localhost:8080"), "Status server host:port")
	raw := flag.Bool("raw", false, "Print every field of each status")
	flag.Parse()

	log.Init("info")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := web.DialStatus(ctx, *addr)
	if err != nil {
		log.Error("connect failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer client.Close()
	log.Info("connected", "addr", *addr)

	for {
		st, err := client.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("stream ended", "error", err)
			}
			return
		}
		if *raw {
			fmt.Printf("%+v\n", st)
			continue
		}
		fmt.Println(formatStatus(st))
	}
}

// formatStatus renders the fields worth watching on one line.
func formatStatus(st web.Status) string {
	m := st.Mouth
	speed := "off"
	if m.Stretch != nil {
		speed = fmt.Sprintf("%.2fx", m.Stretch.Speed)
	}
	var underruns int64
	for _, o := range m.Pipeline.Outputs {
		underruns += o.Underruns
	}
	return fmt.Sprintf("%s pulse=%4.0fus state=%-9s rms=%6.1fdBFS stretch=%s cycles=%d read_errors=%d underruns=%d",
		st.Time.Format(time.TimeOnly),
		m.Pulse, m.State,
		m.Pipeline.Level.RMSDB,
		speed,
		m.Pipeline.Cycles, m.Pipeline.ReadErrors, underruns,
	)
}
