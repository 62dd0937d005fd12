package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dbfleet/dbfleet/internal/units"
	"github.com/dbfleet/dbfleet/pkg/types"
)

var (
	// ErrShape is returned when a payload is not the array the engine expects.
	ErrShape = errors.New("adapter: unexpected payload shape")

	// ErrMissingField marks a record without a name or cluster identity.
	ErrMissingField = errors.New("adapter: missing required field")
)

// Drop describes one record or group skipped during adaptation.
type Drop struct {
	Cluster string `json:"cluster,omitempty"`
	Reason  string `json:"reason"`
}

// Result is the outcome of adapting one payload.
type Result struct {
	Records []types.NodeRecord
	Dropped []Drop
}

// Adapt converts a decoded payload for engine into canonical records.
// It returns ErrShape (wrapped, naming the payload's Go type) when payload is
// not an array; individual malformed records are reported in Result.Dropped.
func Adapt(engine types.Engine, payload any) (Result, error) {
	items, ok := payload.([]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s payload is %T, want array", ErrShape, engine, payload)
	}
	switch engine {
	case types.EngineMSSQL:
		return adaptMSSQLRows(items), nil
	case types.EngineMongoDB, types.EnginePostgreSQL, types.EngineCassandra:
		return adaptGrouped(engine, items), nil
	}
	return Result{}, fmt.Errorf("adapter: unsupported engine %q", engine)
}

// AdaptRecord converts a single raw node record. clusterHint is the group key
// the record was found under; a cluster name carried by the record itself
// takes precedence over it.
func AdaptRecord(engine types.Engine, raw map[string]any, clusterHint string) (types.NodeRecord, error) {
	var n types.NodeRecord
	switch engine {
	case types.EngineMongoDB:
		n = adaptMongo(raw, clusterHint)
	case types.EnginePostgreSQL:
		n = adaptPostgres(raw, clusterHint)
	case types.EngineCassandra:
		n = adaptCassandra(raw, clusterHint)
	case types.EngineMSSQL:
		n = mssqlNode(raw, clusterHint)
		addDrive(&n, raw)
		pickWorstDrive(&n)
	default:
		return types.NodeRecord{}, fmt.Errorf("adapter: unsupported engine %q", engine)
	}
	if err := checkIdentity(n); err != nil {
		return types.NodeRecord{}, err
	}
	return n, nil
}

// adaptGrouped walks [{cluster: [node...]}...]. Cluster keys inside one
// element are visited in sorted order so the output is deterministic.
func adaptGrouped(engine types.Engine, items []any) Result {
	var res Result
	for i, item := range items {
		group, ok := item.(map[string]any)
		if !ok {
			res.Dropped = append(res.Dropped, Drop{
				Reason: fmt.Sprintf("element %d is %T, want object", i, item),
			})
			continue
		}
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, cluster := range keys {
			members, ok := group[cluster].([]any)
			if !ok {
				res.Dropped = append(res.Dropped, Drop{
					Cluster: cluster,
					Reason:  fmt.Sprintf("members are %T, want array", group[cluster]),
				})
				continue
			}
			for j, m := range members {
				raw, ok := m.(map[string]any)
				if !ok {
					res.Dropped = append(res.Dropped, Drop{
						Cluster: cluster,
						Reason:  fmt.Sprintf("member %d is %T, want object", j, m),
					})
					continue
				}
				rec, err := AdaptRecord(engine, raw, cluster)
				if err != nil {
					res.Dropped = append(res.Dropped, Drop{Cluster: cluster, Reason: err.Error()})
					continue
				}
				res.Records = append(res.Records, rec)
			}
		}
	}
	return res
}

func checkIdentity(n types.NodeRecord) error {
	if n.Name == "" {
		return fmt.Errorf("%w: node name", ErrMissingField)
	}
	if n.ClusterID == "" {
		return fmt.Errorf("%w: cluster of node %q", ErrMissingField, n.Name)
	}
	return nil
}

// --- field helpers ----------------------------------------------------------

// lookup finds key in m, falling back to a case-insensitive match.
func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// str returns the first non-empty string value among keys.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := lookup(m, k); ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// num returns the first value among keys that parses as a number.
func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := lookup(m, k); ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// toFloat converts v to a finite number.
func toFloat(v any) (float64, bool) {
	f, ok := rawFloat(v)
	if !ok || !units.Finite(f) {
		return 0, false
	}
	return f, true
}

func rawFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		return units.ParsePercent(x)
	case []byte:
		return units.ParsePercent(string(x))
	}
	return 0, false
}

// sizeGB reads a free-space value that is either a "<n> GB|TB" string or a
// bare number already expressed in GB.
func sizeGB(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := lookup(m, k)
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				if !units.Finite(f) {
					continue
				}
				return f
			}
			return units.ParseDiskSize(x)
		case []byte:
			return units.ParseDiskSize(string(x))
		default:
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

// applyDisk fills the disk fields. The disk rule needs the percentage, so a
// node without one is marked DiskReported=false even when a size is present.
func applyDisk(n *types.NodeRecord, m map[string]any, pctKeys, sizeKeys []string) {
	pct, ok := num(m, pctKeys...)
	if !ok {
		return
	}
	n.DiskReported = true
	n.FreeDiskPercent = pct
	n.FreeDiskGB = sizeGB(m, sizeKeys...)
}

func normalizeRole(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// serviceState maps a service status token. Empty means the engine did not
// report it; anything other than a running token means stopped ("FAIL!",
// "STOPPED", "INACTIVE", ...).
func serviceState(s string) types.ServiceState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return types.ServiceUnknown
	case "RUNNING", "ACTIVE", "UP", "ONLINE", "OK":
		return types.ServiceRunning
	default:
		return types.ServiceStopped
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func setAttr(n *types.NodeRecord, key, val string) {
	if val == "" {
		return
	}
	if n.Attributes == nil {
		n.Attributes = make(map[string]string)
	}
	n.Attributes[key] = val
}
