// Package instruments loads the declarative instruments file: session
// metadata, shared parameter defaults and the list of monitored options.
//
// Example:
//
//	session: forward_test
//	symbol: BTC
//	expiry: "2025-09-21"
//	reload_secs: 30
//	defaults:
//	  initial_tranche_size: 0.005
//	  reward_multiplier: 1.0
//	instruments:
//	  - name: btc_c_60000
//	    side: CALL
//	    strike: 60000
package instruments

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"option-monitor/internal/marketdata"
	"option-monitor/internal/model"
	"option-monitor/internal/monitor"
)

// Document defaults.
const (
	DefaultSession     = "forward_test"
	DefaultSymbol      = "BTC"
	DefaultReloadSecs  = 30
	DefaultCandleLimit = 200
)

var (
	// ErrInvalidDocument is returned when the file fails schema validation
	// or cannot be decoded.
	ErrInvalidDocument = errors.New("invalid instruments document")

	// ErrInvalidInstrument marks a single instrument that cannot be built.
	ErrInvalidInstrument = errors.New("invalid instrument")
)

// legacyKeys maps older parameter names to the current ones.
var legacyKeys = map[string]string{
	"half_size_btc":  "initial_tranche_size",
	"rr_mult":        "reward_multiplier",
	"trail_drop_pct": "trailing_drop_fraction",
	"rsi_bull_min":   "momentum_confirm_threshold",
}

// Document is the resolved instruments file.
type Document struct {
	Session         string
	Symbol          string
	Expiry          string
	ReloadEvery     time.Duration
	ShortResolution model.Resolution
	LongResolution  model.Resolution
	CandleLimit     int
	Instruments     []Spec
}

// Spec is one declared instrument with its merged parameters. Err is set
// when the merged parameters fail to decode or validate; such a spec must
// not be registered.
type Spec struct {
	Name     string
	Contract string
	Params   monitor.Params
	Err      error
}

// Instrument returns the model view of the spec.
func (s Spec) Instrument() model.Instrument {
	return model.Instrument{Name: s.Name, Side: s.Params.Side, Strike: s.Params.Strike, Contract: s.Contract}
}

// Valid returns the specs that can be registered.
func (d *Document) Valid() []Spec {
	out := make([]Spec, 0, len(d.Instruments))
	for _, s := range d.Instruments {
		if s.Err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Resolve turns a raw decoded document into a Document. Document-level
// errors fail the whole call; per-instrument errors are recorded on the
// Spec so one bad entry does not hide the others.
func Resolve(raw map[string]any) (*Document, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	doc := &Document{
		Session:         stringOr(raw["session"], DefaultSession),
		Symbol:          stringOr(raw["symbol"], DefaultSymbol),
		Expiry:          stringOr(raw["expiry"], ""),
		ReloadEvery:     DefaultReloadSecs * time.Second,
		ShortResolution: model.Res5m,
		LongResolution:  model.Res15m,
		CandleLimit:     DefaultCandleLimit,
	}
	if v, ok := raw["reload_secs"]; ok {
		secs, err := toFloat(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("%w: reload_secs %v", ErrInvalidDocument, v)
		}
		doc.ReloadEvery = time.Duration(secs * float64(time.Second))
	}
	if v, ok := raw["candle_limit"]; ok {
		n, err := toFloat(v)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("%w: candle_limit %v", ErrInvalidDocument, v)
		}
		doc.CandleLimit = int(n)
	}
	var err error
	if v, ok := raw["short_resolution"]; ok {
		if doc.ShortResolution, err = model.ParseResolution(fmt.Sprint(v)); err != nil {
			return nil, fmt.Errorf("%w: short_resolution: %v", ErrInvalidDocument, err)
		}
	}
	if v, ok := raw["long_resolution"]; ok {
		if doc.LongResolution, err = model.ParseResolution(fmt.Sprint(v)); err != nil {
			return nil, fmt.Errorf("%w: long_resolution: %v", ErrInvalidDocument, err)
		}
	}

	defaults, _ := raw["defaults"].(map[string]any)
	list, _ := raw["instruments"].([]any)

	seen := make(map[string]int, len(list))
	for i, item := range list {
		entry, _ := item.(map[string]any)
		spec := resolveInstrument(doc, defaults, entry)
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("#%d", i)
		}
		if prev, dup := seen[spec.Name]; dup {
			log.Printf("[instruments] duplicate name %q: entry %d replaces entry %d", spec.Name, i, prev)
			doc.Instruments[prev] = spec
			continue
		}
		seen[spec.Name] = len(doc.Instruments)
		doc.Instruments = append(doc.Instruments, spec)
	}
	return doc, nil
}

// resolveInstrument merges defaults with one entry (entry wins) and
// decodes the result onto monitor.DefaultParams.
func resolveInstrument(doc *Document, defaults, entry map[string]any) Spec {
	merged := make(map[string]any, len(defaults)+len(entry))
	for k, v := range defaults {
		merged[canonicalKey(k)] = v
	}
	for k, v := range entry {
		merged[canonicalKey(k)] = v
	}

	spec := Spec{
		Name:     strings.TrimSpace(stringOr(merged["name"], "")),
		Contract: strings.TrimSpace(stringOr(merged["contract"], "")),
		Params:   monitor.DefaultParams(),
	}
	if err := decodeParams(merged, &spec.Params); err != nil {
		spec.Err = fmt.Errorf("%w %q: %v", ErrInvalidInstrument, spec.Name, err)
		return spec
	}
	if _, ok := merged["strike"]; !ok {
		spec.Err = fmt.Errorf("%w %q: strike is required", ErrInvalidInstrument, spec.Name)
		return spec
	}
	if err := spec.Params.Validate(); err != nil {
		spec.Err = fmt.Errorf("%w %q: %v", ErrInvalidInstrument, spec.Name, err)
		return spec
	}
	if spec.Contract == "" {
		sym, err := marketdata.ContractSymbol(spec.Params.Side, doc.Symbol, spec.Params.Strike, doc.Expiry)
		if err != nil {
			spec.Err = fmt.Errorf("%w %q: %v", ErrInvalidInstrument, spec.Name, err)
			return spec
		}
		spec.Contract = sym
	}
	return spec
}

func decodeParams(in map[string]any, out *monitor.Params) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       sideHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// sideHook parses CALL/PUT (and shorthands) into model.Side.
func sideHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(model.Side("")) || from.Kind() != reflect.String {
		return data, nil
	}
	return model.ParseSide(reflect.ValueOf(data).String())
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if v, ok := legacyKeys[k]; ok {
		return v
	}
	return k
}

// stringOr renders v as a string, falling back to def when absent. Dates
// that YAML typed as timestamps are rendered as YYYY-MM-DD.
func stringOr(v any, def string) string {
	switch val := v.(type) {
	case nil:
		return def
	case string:
		return val
	case time.Time:
		return formatDate(val)
	default:
		return fmt.Sprint(val)
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	err := mapstructure.WeakDecode(v, &f)
	return f, err
}
