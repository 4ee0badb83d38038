// Package ingest brings orbital element sets into the catalog: parsing the
// 3-line Celestrak text format, pulling group files over HTTP, and loading
// YAML seed files for air-gapped bootstrap.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// ParseResult carries the objects recovered from one TLE document and the
// number of malformed blocks that were skipped.
type ParseResult struct {
	Objects []model.SpaceObject
	Skipped int
}

// Parse reads 3-line NORAD element sets (name, line 1, line 2) from r.
// Malformed blocks are skipped and counted, never fatal; only a read failure
// returns an error. Objects carry default classification tags (SECONDARY,
// NORMAL) until ingestion assigns better ones.
func Parse(ctx context.Context, r io.Reader, log logging.Logger) (ParseResult, error) {
	if log == nil {
		log = logging.Noop()
	}
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{}, fmt.Errorf("read element sets: %w", err)
	}

	var res ParseResult
	for i := 0; i+2 < len(lines); {
		name := strings.TrimSpace(lines[i])
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resync one line at a time until the next plausible block.
			log.Warn(ctx, "skipping malformed element set",
				logging.Int("line", i), logging.String("name", name))
			res.Skipped++
			i++
			continue
		}
		if len(line1) != 69 || len(line2) != 69 {
			log.Warn(ctx, "skipping truncated element set",
				logging.String("name", name),
				logging.Int("line1_len", len(line1)), logging.Int("line2_len", len(line2)))
			res.Skipped++
			i += 3
			continue
		}

		// NORAD catalog number sits in columns 3-7 of line 1.
		noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
		if err != nil || noradID <= 0 {
			log.Warn(ctx, "skipping element set with invalid catalog number",
				logging.String("name", name), logging.String("field", line1[2:7]))
			res.Skipped++
			i += 3
			continue
		}

		res.Objects = append(res.Objects, model.SpaceObject{
			NoradID:  noradID,
			Name:     name,
			Line1:    line1,
			Line2:    line2,
			Priority: model.PrioritySecondary,
			Mission:  model.MissionNormal,
		})
		i += 3
	}
	return res, nil
}
