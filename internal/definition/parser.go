// Package definition loads DAG info seed files
package definition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// DefaultLifetime is how long a definition without expire_time stays valid
const DefaultLifetime = 10 * 365 * 24 * time.Hour

// Parser handles parsing seed files
type Parser struct {
	now func() time.Time
}

// NewParser creates a new seed parser
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// seedFile represents the structure of a seed file
type seedFile struct {
	Dags []dagInfoFile `json:"dags" yaml:"dags"`
}

// dagInfoFile represents one DAG in a seed file
type dagInfoFile struct {
	DagID             string      `json:"dag_id" yaml:"dag_id"`
	DagName           string      `json:"dag_name" yaml:"dag_name"`
	Valid             *bool       `json:"valid,omitempty" yaml:"valid,omitempty"`
	ExpireTime        string      `json:"expire_time,omitempty" yaml:"expire_time,omitempty"`
	NextStartTime     string      `json:"next_start_time,omitempty" yaml:"next_start_time,omitempty"`
	SchedulerInterval interface{} `json:"scheduler_interval" yaml:"scheduler_interval"`
	SkipFailed        bool        `json:"skip_failed,omitempty" yaml:"skip_failed,omitempty"`
}

// ParseFile parses a seed file, choosing the format by extension
func (p *Parser) ParseFile(path string) ([]*models.DagInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return p.ParseJSON(data)
	}
	return p.ParseYAML(data)
}

// ParseYAML parses seed definitions from YAML bytes
func (p *Parser) ParseYAML(data []byte) ([]*models.DagInfo, error) {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return p.convert(&sf)
}

// ParseJSON parses seed definitions from JSON bytes
func (p *Parser) ParseJSON(data []byte) ([]*models.DagInfo, error) {
	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return p.convert(&sf)
}

func (p *Parser) convert(sf *seedFile) ([]*models.DagInfo, error) {
	now := models.TruncateTime(p.now())
	seen := make(map[string]bool, len(sf.Dags))
	out := make([]*models.DagInfo, 0, len(sf.Dags))

	for i := range sf.Dags {
		df := &sf.Dags[i]
		if seen[df.DagID] {
			return nil, fmt.Errorf("duplicate dag_id %q", df.DagID)
		}
		seen[df.DagID] = true

		d, err := p.convertDagInfo(df, now)
		if err != nil {
			return nil, fmt.Errorf("failed to convert dag %q: %w", df.DagID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Parser) convertDagInfo(df *dagInfoFile, now time.Time) (*models.DagInfo, error) {
	interval, err := parseInterval(df.SchedulerInterval)
	if err != nil {
		return nil, err
	}

	expire := now.Add(DefaultLifetime)
	if df.ExpireTime != "" {
		if expire, err = models.ParseTime(df.ExpireTime); err != nil {
			return nil, fmt.Errorf("invalid expire_time format: %w", err)
		}
	}

	next := now
	if df.NextStartTime != "" {
		if next, err = models.ParseTime(df.NextStartTime); err != nil {
			return nil, fmt.Errorf("invalid next_start_time format: %w", err)
		}
	}

	valid := true
	if df.Valid != nil {
		valid = *df.Valid
	}

	name := df.DagName
	if name == "" {
		name = df.DagID
	}

	d := &models.DagInfo{
		DagID:             df.DagID,
		DagName:           name,
		Valid:             valid,
		ExpireTime:        expire,
		DagStatus:         models.DagStatusIdle,
		NextStartTime:     next,
		SchedulerInterval: interval,
		SkipFailed:        df.SkipFailed,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// parseInterval accepts whole seconds or a Go duration string such as "1h30m"
func parseInterval(v interface{}) (int, error) {
	var seconds int64
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("scheduler_interval is required")
	case int:
		seconds = int64(x)
	case int64:
		seconds = x
	case uint64:
		if x > math.MaxInt32 {
			return 0, fmt.Errorf("scheduler_interval %d out of range", x)
		}
		seconds = int64(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("scheduler_interval %v is not whole seconds", x)
		}
		seconds = int64(x)
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			seconds = n
			break
		}
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("invalid scheduler_interval %q: %w", x, err)
		}
		if d%time.Second != 0 {
			return 0, fmt.Errorf("scheduler_interval %q is not whole seconds", x)
		}
		seconds = int64(d / time.Second)
	default:
		return 0, fmt.Errorf("invalid scheduler_interval type %T", v)
	}

	if seconds <= 0 || seconds > math.MaxInt32 {
		return 0, fmt.Errorf("scheduler_interval must be positive, got %d", seconds)
	}
	return int(seconds), nil
}

// Seed adds every definition through the service. Definitions whose dag_id
// already exists are left untouched, so seeding twice is harmless
func Seed(ctx context.Context, svc *daginfo.Service, defs []*models.DagInfo) (int, error) {
	for i, d := range defs {
		if err := svc.AddDagInfo(ctx, d, storage.Values{storage.ColDagID: d.DagID}); err != nil {
			return i, fmt.Errorf("failed to seed dag %q: %w", d.DagID, err)
		}
	}
	return len(defs), nil
}
