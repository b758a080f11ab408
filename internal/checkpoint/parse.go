package checkpoint

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/ocr"
)

// Character sets handed to the OCR engine for each region.
const (
	LevelAllowlist = "0123456789LV"
	ExpAllowlist   = "0123456789[]%."
	GaugeAllowlist = "0123456789/[]"
)

var (
	levelRe = regexp.MustCompile(`^\d{1,3}$`)
	expRe   = regexp.MustCompile(`^(?P<value>\d+)\[(?P<ratio>\d{1,2}\.\d{1,2})%\]?$`)
	gaugeRe = regexp.MustCompile(`^\[(?P<current>\d+)/(?P<total>\d+)\].*$`)
)

func normalize(text string) string {
	return strings.ReplaceAll(text, " ", "")
}

// ParseLevel returns the level from the first fragment that is one to three
// digits.
func ParseLevel(results []ocr.TextResult) (int, error) {
	for _, r := range results {
		text := normalize(r.Text)
		if !levelRe.MatchString(text) {
			continue
		}
		level, err := strconv.Atoi(text)
		if err == nil {
			return level, nil
		}
	}
	slog.Warn("failed to parse level from OCR results", "texts", ocr.Texts(results))
	return 0, apperrors.New(apperrors.CodeParseFailed, "no level in OCR results").
		WithMetadata("texts", ocr.Texts(results))
}

// ParseExp returns the experience value and its ratio (0..1) from a fragment
// shaped like "123456[12.34%]".
func ParseExp(results []ocr.TextResult) (int64, float64, error) {
	for _, r := range results {
		m := expRe.FindStringSubmatch(normalize(r.Text))
		if m == nil {
			continue
		}
		exp, err := strconv.ParseInt(m[expRe.SubexpIndex("value")], 10, 64)
		if err != nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[expRe.SubexpIndex("ratio")], 64)
		if err != nil {
			continue
		}
		return exp, pct / 100, nil
	}
	slog.Warn("failed to parse experience from OCR results", "texts", ocr.Texts(results))
	return 0, 0, apperrors.New(apperrors.CodeParseFailed, "no experience in OCR results").
		WithMetadata("texts", ocr.Texts(results))
}

// ParseGauge returns current and total from a fragment shaped like
// "[1200/3400]". A zero total is a misread and the fragment is skipped.
func ParseGauge(results []ocr.TextResult) (int64, int64, error) {
	for _, r := range results {
		m := gaugeRe.FindStringSubmatch(normalize(r.Text))
		if m == nil {
			continue
		}
		current, err := strconv.ParseInt(m[gaugeRe.SubexpIndex("current")], 10, 64)
		if err != nil {
			continue
		}
		total, err := strconv.ParseInt(m[gaugeRe.SubexpIndex("total")], 10, 64)
		if err != nil || total <= 0 {
			continue
		}
		return current, total, nil
	}
	slog.Warn("failed to parse gauge from OCR results", "texts", ocr.Texts(results))
	return 0, 0, apperrors.New(apperrors.CodeParseFailed, "no gauge in OCR results").
		WithMetadata("texts", ocr.Texts(results))
}

// NewExpFromOCR builds an experience checkpoint from the level and
// experience region results. A zero ts means now.
func NewExpFromOCR(level, exp []ocr.TextResult, ts time.Time) (Exp, error) {
	lv, err := ParseLevel(level)
	if err != nil {
		return Exp{}, err
	}
	value, ratio, err := ParseExp(exp)
	if err != nil {
		return Exp{}, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return Exp{Level: lv, Exp: value, Ratio: ratio, Timestamp: ts}, nil
}

// NewGaugeFromOCR builds a health or mana checkpoint. A zero ts means now.
func NewGaugeFromOCR(results []ocr.TextResult, ts time.Time) (Gauge, error) {
	current, total, err := ParseGauge(results)
	if err != nil {
		return Gauge{}, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return Gauge{Current: current, Total: total, Timestamp: ts}, nil
}

// NewGaugesFromOCR parses a batch. The returned slice has one entry per
// input; entries that failed to parse are nil. ts may be nil, otherwise it
// must have one timestamp per input.
func NewGaugesFromOCR(batch [][]ocr.TextResult, ts []time.Time) ([]*Gauge, error) {
	if ts != nil && len(ts) != len(batch) {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument,
			"got %d timestamps for %d results", len(ts), len(batch))
	}
	out := make([]*Gauge, len(batch))
	for i, results := range batch {
		var at time.Time
		if ts != nil {
			at = ts[i]
		}
		g, err := NewGaugeFromOCR(results, at)
		if err != nil {
			continue
		}
		out[i] = &g
	}
	return out, nil
}
