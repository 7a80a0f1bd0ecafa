// ppe-analyze: run a hybrid PPE analysis on one image file
//
// Runs the detectors directly, or posts the image to a ppe-server with -server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teslashibe/go-ppe/internal/config"
	"github.com/teslashibe/go-ppe/internal/httpc"
	"github.com/teslashibe/go-ppe/internal/log"
	"github.com/teslashibe/go-ppe/pkg/analysis"
	"github.com/teslashibe/go-ppe/pkg/annotate"
	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/detect"
	"github.com/teslashibe/go-ppe/pkg/fusion"
	"github.com/teslashibe/go-ppe/pkg/storage"
)

var (
	server        = flag.String("server", "", "ppe-server base URL; empty runs the detectors locally")
	minConfidence = flag.Float64("min-confidence", config.DefaultMinConfidence, "Display threshold (0-100)")
	required      = flag.String("required", "", "Comma-separated required equipment, e.g. HEAD_COVER,HAND_COVER")
	annotated     = flag.String("out", "", "Write an annotated PNG to this path")
	asJSON        = flag.Bool("json", false, "Print the fused result as JSON")
	verbose       = flag.Bool("v", false, "Debug logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ppe-analyze [flags] <image>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log.Init(level, "")

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var res *fusion.Result
	if *server != "" {
		res, err = analyzeRemote(ctx, path, data)
	} else {
		res, err = analyzeLocal(ctx, data)
	}
	if err != nil {
		return err
	}

	report, err := compliance.Evaluate(res, compliance.Options{
		Required:      parseRequired(*required),
		MinConfidence: *minConfidence,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	printReport(report)

	if *annotated != "" {
		return writeAnnotated(data, res, *annotated)
	}
	return nil
}

func analyzeLocal(ctx context.Context, data []byte) (*fusion.Result, error) {
	logger := log.L()

	var detector detect.Detector
	var err error
	switch strings.ToLower(config.String("PPE_DETECTOR", config.DetectorRekognition)) {
	case config.DetectorHTTP:
		detector, err = detect.NewHTTPClient(
			detect.WithBaseURL(config.Required("PPE_DETECTOR_URL", "PPE_DETECTOR_URL=http://host:port ppe-analyze image.jpg")),
			detect.WithAPIKey(os.Getenv("PPE_DETECTOR_API_KEY")),
			detect.WithLogger(logger),
		)
	default:
		detector, err = detect.NewRekognition(ctx,
			detect.WithRegion(config.String("AWS_REGION", config.DefaultRegion)),
			detect.WithLogger(logger),
		)
	}
	if err != nil {
		return nil, err
	}
	defer detector.Close()

	svc, err := analysis.New(analysis.Config{
		Detector: detector,
		Store:    storage.NewMemory("local"),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	insp, err := svc.Inspect(ctx, detect.Image{Bytes: data}, *minConfidence)
	if err != nil {
		return nil, err
	}
	return insp.Result, nil
}

func analyzeRemote(ctx context.Context, path string, data []byte) (*fusion.Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("detection_type", fusion.DetectionType)
	w.WriteField("min_confidence", fmt.Sprintf("%g", *minConfidence))
	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	part.Write(data)
	if err := w.Close(); err != nil {
		return nil, err
	}

	resp, err := httpc.Post(ctx, strings.TrimSuffix(*server, "/")+"/api/analyze", w.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		var e struct {
			Error string `json:"error"`
		}
		json.Unmarshal(raw, &e)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}

	var res fusion.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

func parseRequired(s string) []fusion.EquipmentType {
	var out []fusion.EquipmentType
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, fusion.EquipmentType(strings.ToUpper(v)))
		}
	}
	return out
}

func printReport(r *compliance.Report) {
	fmt.Printf("Persons: %d (compliant %d, partial %d, non-compliant %d)\n",
		r.TotalPersons, r.Compliant, r.Partial, r.NonCompliant)
	fmt.Printf("Compliance: %d%% (%d/%d required items)\n", r.CompliancePercent, r.DetectedRequired, r.TotalRequired)
	for _, p := range r.Persons {
		fmt.Printf("  #%d %s", p.ID, p.Status)
		if len(p.Missing) > 0 {
			fmt.Printf("  missing:")
			for _, m := range p.Missing {
				fmt.Printf(" %s", compliance.DisplayName(m))
			}
		}
		fmt.Println()
		for _, it := range p.Items {
			mark := "✗"
			if it.Pass {
				mark = "✓"
			}
			fmt.Printf("     %s %-12s %5.1f%%  %s\n", mark, it.Type, it.Confidence, it.Method)
		}
	}
	fmt.Println()
	fmt.Println(r.Narrative)
}

func writeAnnotated(data []byte, res *fusion.Result, path string) error {
	img, err := annotate.Decode(data)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := annotate.EncodePNG(f, annotate.Render(img, res, *minConfidence)); err != nil {
		return err
	}
	fmt.Printf("Annotated image: %s\n", path)
	return nil
}
