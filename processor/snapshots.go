package processor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"quantflow/logger"
	"quantflow/models"
)

// Processor turns raw archive day directories into ordered, normalized
// snapshot sequences. Raw files live at raw_dir/l2Book/<yyyymmdd>/<hh>/<coin>.json,
// one file per hour, each holding either a JSON array of snapshots or one
// JSON document per line.
type Processor struct {
	rawDir string
	log    *logger.Entry
}

func NewProcessor(rawDir string) *Processor {
	return &Processor{
		rawDir: rawDir,
		log:    logger.GetLogger().WithComponent("processor"),
	}
}

// LoadDay reads all hourly files for (coin, date) and returns the snapshots
// in chronological order. A missing day directory yields an empty slice, not
// an error; the caller decides whether an empty day is fatal.
func (p *Processor) LoadDay(coin, dateStr string) ([]models.OrderBookSnapshot, error) {
	dayDir := filepath.Join(p.rawDir, "l2Book", dateStr)
	if _, err := os.Stat(dayDir); os.IsNotExist(err) {
		p.log.WithFields(logger.Fields{"coin": coin, "date": dateStr}).Warn("no raw data for day")
		return nil, nil
	}

	pattern := filepath.Join(dayDir, "*", fmt.Sprintf("%s.json", coin))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan raw day directory: %w", err)
	}
	sort.Strings(files)

	var snaps []models.OrderBookSnapshot
	for _, file := range files {
		fileSnaps, err := p.loadFile(file)
		if err != nil {
			p.log.WithError(err).WithFields(logger.Fields{"file": file}).Error("failed to read raw file")
			continue
		}
		snaps = append(snaps, fileSnaps...)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.Before(snaps[j].Timestamp)
	})

	p.log.WithFields(logger.Fields{
		"coin":      coin,
		"date":      dateStr,
		"files":     len(files),
		"snapshots": len(snaps),
	}).Info("Loaded raw day")

	return snaps, nil
}

func (p *Processor) loadFile(path string) ([]models.OrderBookSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []models.RawL2Snapshot
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot array: %w", err)
		}
		snaps := make([]models.OrderBookSnapshot, 0, len(raws))
		for _, raw := range raws {
			snaps = append(snaps, p.normalize(raw, path))
		}
		logger.RecordFlowMessage("raw_snapshots", len(data))
		return snaps, nil
	}

	// One JSON document per line, either a bare snapshot or the l2Book
	// channel envelope the websocket feed produces.
	var snaps []models.OrderBookSnapshot
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw models.RawL2Snapshot
		if err := json.Unmarshal(line, &raw); err != nil || raw.Time == 0 {
			var msg models.WSMessage
			if err := json.Unmarshal(line, &msg); err != nil || msg.Data.Time == 0 {
				p.log.WithFields(logger.Fields{"file": path}).Debug("skipping unparseable line")
				continue
			}
			raw = msg.Data
		}
		snaps = append(snaps, p.normalize(raw, path))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan raw file: %w", err)
	}
	logger.RecordFlowMessage("raw_snapshots", len(data))
	return snaps, nil
}

// normalize wraps Normalize with a crossed-book check. Crossed snapshots are
// kept, matching the keep-and-log policy for bad rows, but logged so a feed
// producing them regularly is visible.
func (p *Processor) normalize(raw models.RawL2Snapshot, path string) models.OrderBookSnapshot {
	snap := Normalize(raw)
	if snap.Crossed() {
		p.log.WithFields(logger.Fields{
			"file":      path,
			"coin":      snap.Coin,
			"timestamp": snap.Timestamp,
		}).Warn("crossed book snapshot")
	}
	return snap
}

// Normalize parses the string-encoded levels of a raw snapshot. A missing or
// unparseable side comes out empty rather than failing the whole sequence;
// downstream feature derivation marks such rows invalid.
func Normalize(raw models.RawL2Snapshot) models.OrderBookSnapshot {
	snap := models.OrderBookSnapshot{
		Coin:      raw.Coin,
		Timestamp: time.UnixMilli(raw.Time).UTC(),
	}
	if len(raw.Levels) > 0 {
		snap.Bids = parseLevels(raw.Levels[0])
	}
	if len(raw.Levels) > 1 {
		snap.Asks = parseLevels(raw.Levels[1])
	}
	return snap
}

func parseLevels(raw []models.RawLevel) []models.BookLevel {
	levels := make([]models.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		px, err := strconv.ParseFloat(lvl.Px, 64)
		if err != nil {
			continue
		}
		sz, err := strconv.ParseFloat(lvl.Sz, 64)
		if err != nil {
			continue
		}
		levels = append(levels, models.BookLevel{Price: px, Size: sz})
	}
	return levels
}
