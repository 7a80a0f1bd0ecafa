// ppe-stream: replay a directory of JPEG frames to a ppe-server camera stream
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ppe/internal/log"
	"github.com/teslashibe/go-ppe/pkg/protocol"
)

var (
	server        = flag.String("server", "ws://localhost:8080", "ppe-server WebSocket base URL")
	camera        = flag.String("camera", "replay", "Camera ID")
	dir           = flag.String("dir", ".", "Directory of JPEG or PNG frames")
	interval      = flag.Duration("interval", time.Second, "Delay between frames")
	minConfidence = flag.Float64("min-confidence", 0, "Display threshold; 0 uses the server default")
	loop          = flag.Bool("loop", false, "Replay the directory until interrupted")
)

func main() {
	flag.Parse()
	log.Init("info", "")
	logger := log.L()

	frames, err := listFrames(*dir)
	if err != nil {
		logger.Error("list frames failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(frames) == 0 {
		logger.Error("no frames found", "dir", *dir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := strings.TrimSuffix(*server, "/") + "/ws/stream/" + url.PathEscape(*camera)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		logger.Error("dial failed", "url", target, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("connected", "url", target, "frames", len(frames))

	go readReplies(conn)

	var frameID uint64
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		for _, path := range frames {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("read frame failed", "path", path, "error", err)
				continue
			}
			frameID++
			msg, err := protocol.NewFrameMessage(data, frameID, *minConfidence)
			if err != nil {
				logger.Error("encode frame failed", "error", err)
				return
			}
			raw, _ := msg.Bytes()
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Error("send failed", "error", err)
				return
			}

			select {
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			case <-ticker.C:
			}
		}
		if !*loop {
			// Give the last reply time to arrive.
			time.Sleep(*interval)
			return
		}
	}
}

func readReplies(conn *websocket.Conn) {
	logger := log.L()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Warn("bad reply", "error", err)
			continue
		}
		switch msg.Type {
		case protocol.TypeResult:
			res, err := msg.GetResultData()
			if err != nil || res.Report == nil {
				continue
			}
			fmt.Printf("frame %-5d persons=%d compliant=%d compliance=%d%% latency=%dms\n",
				res.FrameID, res.Report.TotalPersons, res.Report.Compliant, res.Report.CompliancePercent, res.LatencyMs)
		case protocol.TypeError:
			e, err := msg.GetErrorData()
			if err != nil {
				continue
			}
			fmt.Printf("frame %-5d error: %s\n", e.FrameID, e.Message)
		}
	}
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
