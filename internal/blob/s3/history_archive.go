package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

const (
	historyPrefix    = "history/"
	contentTypeJSONL = "application/x-ndjson"

	// Archives larger than this go through the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
)

// HistoryArchive implements domain.HistoryArchive by storing one JSONL
// object per market at history/{market_id}.jsonl, one {"t","p"} per line
// in time order.
type HistoryArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewHistoryArchive creates a HistoryArchive on top of the blob layer.
func NewHistoryArchive(w domain.BlobWriter, r domain.BlobReader) *HistoryArchive {
	return &HistoryArchive{writer: w, reader: r}
}

// HistoryKey returns the object key holding a market's archived history.
func HistoryKey(marketID string) string {
	return historyPrefix + marketID + ".jsonl"
}

// Write uploads the complete history of a market, replacing any previous
// archive for it.
func (a *HistoryArchive) Write(ctx context.Context, marketID string, points []domain.PricePoint) error {
	buf, err := encodeHistory(points)
	if err != nil {
		return fmt.Errorf("s3blob: encode history %s: %w", marketID, err)
	}

	key := HistoryKey(marketID)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return fmt.Errorf("s3blob: write history %s: %w", marketID, err)
	}
	return nil
}

// Read returns the archived points with from <= t <= to. A zero to means
// no upper limit. domain.ErrNotFound is returned when the market has no
// archive.
func (a *HistoryArchive) Read(ctx context.Context, marketID string, from, to time.Time) ([]domain.PricePoint, error) {
	body, err := a.reader.Get(ctx, HistoryKey(marketID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("s3blob: read history %s: %w", marketID, err)
	}
	defer body.Close()

	points, err := decodeHistory(body, marketID, from, to)
	if err != nil {
		return nil, fmt.Errorf("s3blob: decode history %s: %w", marketID, err)
	}
	return points, nil
}

// Has reports whether a market's history has been archived.
func (a *HistoryArchive) Has(ctx context.Context, marketID string) (bool, error) {
	return a.reader.Exists(ctx, HistoryKey(marketID))
}

// MarketIDs lists the markets that have an archive object.
func (a *HistoryArchive) MarketIDs(ctx context.Context) ([]string, error) {
	infos, err := a.reader.List(ctx, historyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := path.Base(info.Path)
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}

func encodeHistory(points []domain.PricePoint) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range points {
		if err := enc.Encode(p.Compact()); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeHistory(r io.Reader, marketID string, from, to time.Time) ([]domain.PricePoint, error) {
	fromMs := from.UnixMilli()
	toMs := int64(0)
	if !to.IsZero() {
		toMs = to.UnixMilli()
	}

	var points []domain.PricePoint
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ap domain.ArchivedPoint
		if err := json.Unmarshal(raw, &ap); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ap.T < fromMs || (toMs != 0 && ap.T > toMs) {
			continue
		}
		points = append(points, domain.PricePoint{
			MarketID:  marketID,
			Timestamp: time.UnixMilli(ap.T).UTC(),
			Price:     ap.P,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

var _ domain.HistoryArchive = (*HistoryArchive)(nil)
