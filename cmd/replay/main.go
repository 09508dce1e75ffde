// Command replay feeds a CSV trail of reported positions through the game
// service and writes the resulting game events as a JSON fixture. The clock
// and record ids are fixed so repeated runs produce identical output.
//
// Usage:
//
//	go run ./cmd/replay -csv data/trails/denver_to_svalbard.csv -out data/mock/game_events.json
//
// The CSV header must contain user_id, lat, lon and hour; session_id and
// recorded_at (RFC 3339) are optional.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/game"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/store"
)

var replayClock = time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV file of reported positions")
	out := flag.String("out", "", "output path for the game event fixture")
	seed := flag.Int64("seed", 1, "seed for record ids")
	flag.Parse()

	if *csvPath == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -out")
	}

	domain.SetClock(clockwork.NewFakeClockAt(replayClock))
	defer domain.SetClock(nil)
	uuid.SetRand(rand.New(rand.NewSource(*seed))) //nolint:gosec // deterministic fixture ids
	defer uuid.SetRand(nil)

	reqs, err := readVisits(*csvPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *csvPath, err)
	}

	rec := &eventRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(store.NewMemory(), nil, rec, observability.NewMetricsForTesting(), logger)

	ctx := context.Background()
	for i, req := range reqs {
		if _, err := svc.ReportLocation(ctx, req); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	log.Printf("replayed %d visits", len(reqs))

	if err := writeJSON(*out, rec.events); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d events: %s", len(rec.events), *out)

	printSummary(ctx, svc, reqs)
	return nil
}

type eventRecorder struct {
	events []domain.GameEvent
}

func (r *eventRecorder) Publish(event domain.GameEvent) {
	r.events = append(r.events, event)
}

func readVisits(path string) ([]game.VisitRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"user_id", "lat", "lon", "hour"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	reqs := make([]game.VisitRequest, 0, len(rows)-1)
	for n, row := range rows[1:] {
		req, err := parseRow(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parseRow(row []string, colIdx map[string]int) (game.VisitRequest, error) {
	lat, err := strconv.ParseFloat(get(row, colIdx, "lat"), 64)
	if err != nil {
		return game.VisitRequest{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(get(row, colIdx, "lon"), 64)
	if err != nil {
		return game.VisitRequest{}, fmt.Errorf("lon: %w", err)
	}
	hour, err := strconv.Atoi(get(row, colIdx, "hour"))
	if err != nil {
		return game.VisitRequest{}, fmt.Errorf("hour: %w", err)
	}

	req := game.VisitRequest{
		UserID:     get(row, colIdx, "user_id"),
		SessionID:  get(row, colIdx, "session_id"),
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		Hour:       &hour,
	}
	if ts := get(row, colIdx, "recorded_at"); ts != "" {
		req.RecordedAt, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return game.VisitRequest{}, fmt.Errorf("recorded_at: %w", err)
		}
	}
	return req, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printSummary(ctx context.Context, svc *game.Service, reqs []game.VisitRequest) {
	seen := map[string]bool{}
	var users []string
	for _, r := range reqs {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	sort.Strings(users)

	fmt.Printf("\n%-20s %6s %6s %8s %6s  %s\n", "USER", "LEVEL", "VISITS", "XP", "DATA", "ACHIEVEMENTS")
	for _, u := range users {
		stats, err := svc.Stats(ctx, u)
		if err != nil {
			fmt.Printf("%-20s error: %v\n", u, err)
			continue
		}
		ids := make([]string, len(stats.Achievements))
		for i, id := range stats.Achievements {
			ids[i] = string(id)
		}
		fmt.Printf("%-20s %6d %6d %8d %6d  %s\n", u, stats.Level, stats.TotalLocationsVisited,
			stats.Experience, stats.NASADataCollected, strings.Join(ids, ","))
	}
}
